package ecs

// QueryResult is a snapshot of a query's matches. Mutating the world while
// iterating it is safe: the slice is never touched by later updates.
type QueryResult struct {
	world    *World
	entities []Entity
}

func (r QueryResult) Entities() []Entity { return r.entities }
func (r QueryResult) Len() int           { return len(r.entities) }

func (r QueryResult) ForEach(fn func(Entity)) {
	for _, e := range r.entities {
		fn(e)
	}
}

// ChangeDetection controls whether bulk updates emit change events.
type ChangeDetection uint8

const (
	// ChangeAuto compares written values only for traits someone tracks.
	ChangeAuto ChangeDetection = iota
	// ChangeAlways compares every written value and marks differing ones.
	ChangeAlways
	// ChangeNever writes straight into the store.
	ChangeNever
)

// accessor binds a typed trait to one world for the duration of a bulk update.
type accessor[T any] struct {
	w      *World
	inst   *traitInstance
	store  typedStore[T]
	detect bool
}

func bind[T any](w *World, t TraitOf[T], mode ChangeDetection) (accessor[T], bool) {
	inst := w.register(t.Trait)
	s, ok := inst.store.(typedStore[T])
	if !ok {
		return accessor[T]{}, false
	}
	detect := mode == ChangeAlways || (mode == ChangeAuto && inst.tracked())
	return accessor[T]{w: w, inst: inst, store: s, detect: detect}, true
}

func (a accessor[T]) holds(e Entity) bool {
	return a.w.fabric.has(a.inst.gen, e.ID(), a.inst.flag)
}

func (a accessor[T]) write(e Entity, v T) error {
	if !a.detect {
		return a.store.set(e.ID(), v)
	}
	changed, err := a.store.setChanged(e.ID(), v)
	if err != nil {
		return err
	}
	if changed {
		a.w.changed(e, a.inst)
	}
	return nil
}

func detectionMode(modes []ChangeDetection) ChangeDetection {
	if len(modes) > 0 {
		return modes[0]
	}
	return ChangeAuto
}

// UpdateEach loads A for every entity of r, lets fn mutate it and writes it
// back. Entities that lost A or died during iteration are skipped.
func UpdateEach[A any](r QueryResult, ta TraitOf[A], fn func(Entity, *A), modes ...ChangeDetection) error {
	a, ok := bind(r.world, ta, detectionMode(modes))
	if !ok {
		return nil
	}
	for _, e := range r.entities {
		if !r.world.index.isAlive(e) || !a.holds(e) {
			continue
		}
		va := a.store.get(e.ID())
		fn(e, &va)
		if err := a.write(e, va); err != nil {
			return err
		}
	}
	return nil
}

// UpdateEach2 is UpdateEach over two traits.
func UpdateEach2[A, B any](r QueryResult, ta TraitOf[A], tb TraitOf[B], fn func(Entity, *A, *B), modes ...ChangeDetection) error {
	m := detectionMode(modes)
	a, okA := bind(r.world, ta, m)
	b, okB := bind(r.world, tb, m)
	if !okA || !okB {
		return nil
	}
	for _, e := range r.entities {
		if !r.world.index.isAlive(e) || !a.holds(e) || !b.holds(e) {
			continue
		}
		va, vb := a.store.get(e.ID()), b.store.get(e.ID())
		fn(e, &va, &vb)
		if err := a.write(e, va); err != nil {
			return err
		}
		if err := b.write(e, vb); err != nil {
			return err
		}
	}
	return nil
}

// UpdateEach3 is UpdateEach over three traits.
func UpdateEach3[A, B, C any](r QueryResult, ta TraitOf[A], tb TraitOf[B], tc TraitOf[C], fn func(Entity, *A, *B, *C), modes ...ChangeDetection) error {
	m := detectionMode(modes)
	a, okA := bind(r.world, ta, m)
	b, okB := bind(r.world, tb, m)
	c, okC := bind(r.world, tc, m)
	if !okA || !okB || !okC {
		return nil
	}
	for _, e := range r.entities {
		if !r.world.index.isAlive(e) || !a.holds(e) || !b.holds(e) || !c.holds(e) {
			continue
		}
		va, vb, vc := a.store.get(e.ID()), b.store.get(e.ID()), c.store.get(e.ID())
		fn(e, &va, &vb, &vc)
		if err := a.write(e, va); err != nil {
			return err
		}
		if err := b.write(e, vb); err != nil {
			return err
		}
		if err := c.write(e, vc); err != nil {
			return err
		}
	}
	return nil
}

// Column exposes the backing array of one field of a columnar trait for bulk
// numeric work. The slice is indexed by Entity.ID and is only valid until the
// next add grows the store.
func Column[F any](w *World, t AnyTrait, field string) ([]F, bool) {
	inst := w.register(t.base())
	cs, ok := inst.store.(columnar)
	if !ok {
		return nil, false
	}
	c, ok := cs.column(field)
	if !ok {
		return nil, false
	}
	data, ok := c.values().([]F)
	return data, ok
}
