package event

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmndrs/koota-sub000/internal/core/ecs"
)

type ping struct{ N int }
type pong struct{ S string }

func TestBusDeliversNextTickInOrder(t *testing.T) {
	b := NewBus()
	var got []any
	Subscribe(b, func(p ping) { got = append(got, p) })
	Subscribe(b, func(p pong) { got = append(got, p) })

	Emit(b, ping{1})
	Emit(b, pong{"a"})
	Emit(b, ping{2})
	require.Equal(t, 3, b.Pending())

	b.DispatchAll()
	require.Empty(t, got, "nothing is readable before the swap")

	b.SwapBuffers()
	require.Zero(t, b.Pending())
	b.DispatchAll()
	require.Equal(t, []any{ping{1}, pong{"a"}, ping{2}}, got)
	require.Equal(t, []ping{{1}, {2}}, Events[ping](b))

	b.SwapBuffers()
	got = nil
	b.DispatchAll()
	require.Empty(t, got)
}

func TestHandlersEmitIntoNextTick(t *testing.T) {
	b := NewBus()
	Subscribe(b, func(p ping) {
		if p.N < 3 {
			Emit(b, ping{p.N + 1})
		}
	})
	var seen []int
	Subscribe(b, func(p ping) { seen = append(seen, p.N) })

	Emit(b, ping{1})
	for i := 0; i < 4; i++ {
		b.SwapBuffers()
		b.DispatchAll()
	}
	require.Equal(t, []int{1, 2, 3}, seen)
}

func TestWatchBridgesWorldHooks(t *testing.T) {
	w, err := ecs.NewWorld()
	require.NoError(t, err)
	t.Cleanup(w.Close)

	score := ecs.Object("Score", func() int { return 0 })
	b := NewBus()
	stop := Watch(b, w, score.Trait)

	e, err := w.Spawn(score)
	require.NoError(t, err)
	require.NoError(t, score.Set(w, e, 3))
	w.Remove(e, score)

	b.SwapBuffers()
	require.Equal(t, []TraitAdded{{World: w.ID(), Entity: e, Trait: score.Trait}}, Events[TraitAdded](b))
	require.Equal(t, []TraitChanged{{World: w.ID(), Entity: e, Trait: score.Trait}}, Events[TraitChanged](b))
	require.Equal(t, []TraitRemoved{{World: w.ID(), Entity: e, Trait: score.Trait}}, Events[TraitRemoved](b))

	stop()
	require.NoError(t, w.Add(e, score))
	require.Zero(t, b.Pending())
}
