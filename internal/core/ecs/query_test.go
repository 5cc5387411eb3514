package ecs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	Foo = Tag("Foo")
	Bar = Tag("Bar")
	Baz = Tag("Baz")
)

func spawnN(t *testing.T, w *World, n int, components ...Component) []Entity {
	t.Helper()
	out := make([]Entity, n)
	for i := range out {
		e, err := w.Spawn(components...)
		require.NoError(t, err)
		out[i] = e
	}
	return out
}

func TestQueryStaticCorrectness(t *testing.T) {
	w := newTestWorld(t)
	es := spawnN(t, w, 3)
	a, b, c := es[0], es[1], es[2]

	require.Equal(t, []Entity{a, b, c}, w.Query(Not(Foo)).Entities())

	require.NoError(t, w.Add(a, Foo))
	require.NoError(t, w.Add(b, Bar))
	require.NoError(t, w.Add(c, Foo, Bar))

	require.Equal(t, []Entity{a, c}, w.Query(Foo).Entities())
	require.Equal(t, []Entity{c}, w.Query(Foo, Bar).Entities())
	require.Equal(t, []Entity{b}, w.Query(Not(Foo)).Entities())
	require.ElementsMatch(t, []Entity{a, b, c}, w.Query(Or(Foo, Bar)).Entities())
	require.Equal(t, []Entity{b}, w.Query(Bar, Not(Foo)).Entities())
}

func TestQueryExcludesWorldEntity(t *testing.T) {
	w := newTestWorld(t, WithTraits(Foo))
	require.True(t, w.Has(w.Entity(), Foo))
	require.Empty(t, w.Query(Foo).Entities())
	require.Empty(t, w.Query().Entities())
}

func TestQueryIsUpdatedIncrementally(t *testing.T) {
	w := newTestWorld(t)
	q := w.Query(Foo)
	require.Zero(t, q.Len())

	e, err := w.Spawn(Foo)
	require.NoError(t, err)
	require.Equal(t, []Entity{e}, w.Query(Foo).Entities())

	w.Remove(e, Foo)
	require.Empty(t, w.Query(Foo).Entities())
}

func TestEmptyFilterQueriesTrackSpawnAndDestroy(t *testing.T) {
	w := newTestWorld(t)
	require.Empty(t, w.Query(Not(Foo)).Entities())

	e, err := w.Spawn()
	require.NoError(t, err)
	require.Equal(t, []Entity{e}, w.Query(Not(Foo)).Entities())

	w.Destroy(e)
	require.Empty(t, w.Query(Not(Foo)).Entities())
}

func TestQueryKeyIgnoresArgumentOrder(t *testing.T) {
	require.Equal(t, CacheQuery(Foo, Bar, Not(Baz)), CacheQuery(Not(Baz), Bar, Foo))
	require.NotEqual(t, CacheQuery(Foo), CacheQuery(Not(Foo)))

	w := newTestWorld(t)
	w.Query(Foo, Bar)
	w.Query(Bar, Foo)
	require.Len(t, w.queries, 1)
}

func TestQueryByKeyAcrossWorlds(t *testing.T) {
	key := CacheQuery(Foo, Not(Bar))
	for i := 0; i < 2; i++ {
		w := newTestWorld(t)
		e, err := w.Spawn(Foo)
		require.NoError(t, err)
		_, err = w.Spawn(Foo, Bar)
		require.NoError(t, err)
		require.Equal(t, []Entity{e}, w.QueryByKey(key).Entities())
	}

	w := newTestWorld(t)
	require.Empty(t, w.QueryByKey(QueryKey("unknown")).Entities())
}

func TestQueryRemovalsAreStagedUntilNextRead(t *testing.T) {
	w := newTestWorld(t)
	es := spawnN(t, w, 4, Foo)

	r := w.Query(Foo)
	visited := 0
	r.ForEach(func(e Entity) {
		visited++
		w.Remove(e, Foo)
	})
	require.Equal(t, 4, visited)
	require.Equal(t, es, r.Entities(), "a returned result is never mutated")
	require.Empty(t, w.Query(Foo).Entities())
}

func TestQueryReaddBeforeReadKeepsMembership(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn(Foo)
	require.NoError(t, err)
	w.Query(Foo)

	w.Remove(e, Foo)
	require.NoError(t, w.Add(e, Foo))
	require.Equal(t, []Entity{e}, w.Query(Foo).Entities())
}

func TestQueryFirst(t *testing.T) {
	w := newTestWorld(t)
	_, ok := w.QueryFirst(Foo)
	require.False(t, ok)

	e, err := w.Spawn(Foo)
	require.NoError(t, err)
	got, ok := w.QueryFirst(Foo)
	require.True(t, ok)
	require.Equal(t, e, got)
}

func TestAddedTrackingDrainsOnRead(t *testing.T) {
	w := newTestWorld(t)
	added := NewAdded()
	a, err := w.Spawn()
	require.NoError(t, err)

	require.Empty(t, w.Query(added.Of(Foo)).Entities())

	require.NoError(t, w.Add(a, Foo))
	require.Equal(t, []Entity{a}, w.Query(added.Of(Foo)).Entities())
	require.Empty(t, w.Query(added.Of(Foo)).Entities())
}

func TestAddedThenRemovedCancels(t *testing.T) {
	w := newTestWorld(t)
	added := NewAdded()
	w.Query(added.Of(Foo))

	e, err := w.Spawn(Foo)
	require.NoError(t, err)
	w.Remove(e, Foo)
	require.Empty(t, w.Query(added.Of(Foo)).Entities())
}

func TestRemovedTracking(t *testing.T) {
	w := newTestWorld(t)
	removed := NewRemoved()
	e, err := w.Spawn(Foo)
	require.NoError(t, err)
	w.Query(removed.Of(Foo))

	w.Remove(e, Foo)
	require.Equal(t, []Entity{e}, w.Query(removed.Of(Foo)).Entities())
	require.Empty(t, w.Query(removed.Of(Foo)).Entities())

	// Re-adding before the read cancels the removal.
	require.NoError(t, w.Add(e, Foo))
	w.Remove(e, Foo)
	require.NoError(t, w.Add(e, Foo))
	require.Empty(t, w.Query(removed.Of(Foo)).Entities())
}

func TestRemovedTrackingSeesDestroyedEntities(t *testing.T) {
	w := newTestWorld(t)
	removed := NewRemoved()
	e, err := w.Spawn(Foo)
	require.NoError(t, err)
	w.Query(removed.Of(Foo))

	w.Destroy(e)
	require.Equal(t, []Entity{e}, w.Query(removed.Of(Foo)).Entities())
}

func TestChangedTracking(t *testing.T) {
	w := newTestWorld(t)
	changed := NewChanged()
	e, err := w.Spawn(Position.With(Vec2{1, 2}))
	require.NoError(t, err)
	other, err := w.Spawn(Position)
	require.NoError(t, err)

	require.Empty(t, w.Query(changed.Of(Position)).Entities())

	require.NoError(t, Position.Set(w, e, Vec2{3, 4}))
	w.MarkChanged(e, Position)
	require.Equal(t, []Entity{e}, w.Query(changed.Of(Position)).Entities())
	require.Empty(t, w.Query(changed.Of(Position)).Entities())

	// A change cleared by removal before the read is dropped.
	w.MarkChanged(other, Position)
	w.Remove(other, Position)
	require.Empty(t, w.Query(changed.Of(Position)).Entities())
}

func TestTrackingCombinedWithStaticTerms(t *testing.T) {
	w := newTestWorld(t)
	added := NewAdded()
	w.Query(added.Of(Foo), Bar)

	withBar, err := w.Spawn(Bar)
	require.NoError(t, err)
	without, err := w.Spawn()
	require.NoError(t, err)

	require.NoError(t, w.Add(withBar, Foo))
	require.NoError(t, w.Add(without, Foo))
	require.Equal(t, []Entity{withBar}, w.Query(added.Of(Foo), Bar).Entities())
}

func TestDistinctTrackersObserveIndependently(t *testing.T) {
	w := newTestWorld(t)
	first, second := NewAdded(), NewAdded()
	w.Query(first.Of(Foo))
	w.Query(second.Of(Foo))

	e, err := w.Spawn(Foo)
	require.NoError(t, err)

	require.Equal(t, []Entity{e}, w.Query(first.Of(Foo)).Entities())
	require.Equal(t, []Entity{e}, w.Query(second.Of(Foo)).Entities())
}

func TestTrackingQueryCreatedLaterSeesEarlierTransitions(t *testing.T) {
	w := newTestWorld(t)
	added := NewAdded()
	// The tracker starts observing here.
	w.Query(added.Of(Foo))

	e, err := w.Spawn(Foo)
	require.NoError(t, err)

	// A second query built from the same tracker shares its history.
	require.Equal(t, []Entity{e}, w.Query(added.Of(Foo), Not(Bar)).Entities())
}

func TestManyTraitsSpanGenerations(t *testing.T) {
	w := newTestWorld(t)
	tags := make([]*Trait, 40)
	for i := range tags {
		tags[i] = Tag(fmt.Sprintf("Gen%d", i))
		w.Register(tags[i])
	}
	require.Equal(t, 2, w.fabric.generations())

	early, late := tags[1], tags[35]
	a, err := w.Spawn(early, late)
	require.NoError(t, err)
	b, err := w.Spawn(late)
	require.NoError(t, err)

	require.Equal(t, []Entity{a}, w.Query(early, late).Entities())
	require.ElementsMatch(t, []Entity{a, b}, w.Query(late).Entities())
	require.Equal(t, []Entity{b}, w.Query(late, Not(early)).Entities())
	require.ElementsMatch(t, []*Trait{early, late}, w.TraitsOf(a))
}
