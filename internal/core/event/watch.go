package event

import "github.com/pmndrs/koota-sub000/internal/core/ecs"

// Watch forwards add, remove and change hooks of traits on w into b. This is
// the feed an inspector consumes instead of polling the world. stop
// unsubscribes every hook.
func Watch(b *Bus, w *ecs.World, traits ...*ecs.Trait) (stop func()) {
	unsubs := make([]func(), 0, 3*len(traits))
	for _, t := range traits {
		t := t
		unsubs = append(unsubs,
			w.OnAdd(t, func(e ecs.Entity) {
				Emit(b, TraitAdded{World: w.ID(), Entity: e, Trait: t})
			}),
			w.OnRemove(t, func(e ecs.Entity) {
				Emit(b, TraitRemoved{World: w.ID(), Entity: e, Trait: t})
			}),
			w.OnChange(t, func(e ecs.Entity) {
				Emit(b, TraitChanged{World: w.ID(), Entity: e, Trait: t})
			}),
		)
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
