package ecs

import (
	"fmt"
	"reflect"
	"sync"
)

// StorageKind selects how a trait keeps per-entity data.
type StorageKind uint8

const (
	// StorageTag traits carry no data; presence is the whole payload.
	StorageTag StorageKind = iota
	// StorageColumnar keeps one growable array per field (struct-of-arrays).
	StorageColumnar
	// StorageObject keeps one opaque value per entity (array-of-structs).
	StorageObject
)

func (k StorageKind) String() string {
	switch k {
	case StorageTag:
		return "tag"
	case StorageColumnar:
		return "columnar"
	case StorageObject:
		return "object"
	}
	return fmt.Sprintf("StorageKind(%d)", uint8(k))
}

// Trait is a component descriptor. It is world independent: each world
// registers it lazily on first use and assigns it a (generation, bitflag) pair.
type Trait struct {
	id       uint32
	name     string
	kind     StorageKind
	newStore func() store

	// Set for relation pair traits.
	relation *Relation
	target   Entity

	// Set for Ordered(rel) traits.
	orderedBy *Relation
}

var traitRegistry struct {
	mu     sync.Mutex
	traits []*Trait
}

func defineTrait(name string, kind StorageKind, newStore func() store) *Trait {
	traitRegistry.mu.Lock()
	defer traitRegistry.mu.Unlock()
	t := &Trait{
		id:       uint32(len(traitRegistry.traits)),
		name:     name,
		kind:     kind,
		newStore: newStore,
	}
	traitRegistry.traits = append(traitRegistry.traits, t)
	return t
}

// TraitByID resolves a process-wide trait id, as recorded by command buffers.
func TraitByID(id uint32) (*Trait, bool) {
	traitRegistry.mu.Lock()
	defer traitRegistry.mu.Unlock()
	if int(id) >= len(traitRegistry.traits) {
		return nil, false
	}
	return traitRegistry.traits[id], true
}

func (t *Trait) ID() uint32          { return t.id }
func (t *Trait) Name() string        { return t.name }
func (t *Trait) Kind() StorageKind   { return t.kind }
func (t *Trait) Relation() *Relation { return t.relation }

// Target is the pair target for relation traits and zero otherwise.
func (t *Trait) Target() Entity { return t.target }

func (t *Trait) String() string { return t.name }

// Component is anything that can be attached to an entity: a bare trait, a
// trait with an initial value, or a relation pair.
type Component interface {
	component() (*Trait, any)
}

func (t *Trait) component() (*Trait, any) { return t, nil }

// Init pairs a trait with the value it should start with.
type Init struct {
	Trait *Trait
	Value any
}

func (i Init) component() (*Trait, any) { return i.Trait, i.Value }

// With attaches an untyped initial value. Prefer TraitOf.With.
func (t *Trait) With(value any) Init { return Init{Trait: t, Value: value} }

// Tag declares a data-less marker trait.
func Tag(name string) *Trait {
	return defineTrait(name, StorageTag, nil)
}

// TraitOf is a typed handle over a trait whose values are T.
type TraitOf[T any] struct {
	*Trait
}

func (t TraitOf[T]) With(value T) Init { return Init{Trait: t.Trait, Value: value} }

// Get returns e's value. ok is false when e does not hold the trait.
func (t TraitOf[T]) Get(w *World, e Entity) (T, bool) {
	var zero T
	inst, ok := w.holding("get", e, t.Trait)
	if !ok {
		return zero, false
	}
	s, ok := inst.store.(typedStore[T])
	if !ok {
		return zero, false
	}
	return s.get(e.ID()), true
}

// Set writes v and marks the trait changed.
func (t TraitOf[T]) Set(w *World, e Entity, v T) error {
	inst, ok := w.holding("set", e, t.Trait)
	if !ok {
		return nil
	}
	s, ok := inst.store.(typedStore[T])
	if !ok {
		return fmt.Errorf("%w: %s", ErrValueType, t.name)
	}
	if err := s.set(e.ID(), v); err != nil {
		return err
	}
	w.changed(e, inst)
	return nil
}

// Update replaces e's value with fn applied to the previous one.
func (t TraitOf[T]) Update(w *World, e Entity, fn func(prev T) T) error {
	prev, ok := t.Get(w, e)
	if !ok {
		return nil
	}
	return t.Set(w, e, fn(prev))
}

// Columnar declares a field-columnar trait over the flat struct T. Each field
// becomes its own array; defaults is copied into every newly added entity.
func Columnar[T any](name string, defaults T) (TraitOf[T], error) {
	return ColumnarFunc(name, func() T { return defaults })
}

// ColumnarFunc is Columnar with a factory re-invoked on every add.
func ColumnarFunc[T any](name string, factory func() T) (TraitOf[T], error) {
	layout, err := structLayout(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return TraitOf[T]{}, fmt.Errorf("declare %s: %w", name, err)
	}
	t := defineTrait(name, StorageColumnar, func() store {
		return newColumnStore(layout, factory)
	})
	return TraitOf[T]{t}, nil
}

// MustColumnar is Columnar for package-level declarations.
func MustColumnar[T any](name string, defaults T) TraitOf[T] {
	t, err := Columnar(name, defaults)
	if err != nil {
		panic(err)
	}
	return t
}

// ObjectOption configures an object trait.
type ObjectOption[T any] func(*objectSpec[T])

// WithValidator rejects writes for which fn returns an error. The previous
// value is kept.
func WithValidator[T any](fn func(T) error) ObjectOption[T] {
	return func(s *objectSpec[T]) { s.validate = fn }
}

// WithEqual replaces the structural comparison used by change detection.
func WithEqual[T any](fn func(a, b T) bool) ObjectOption[T] {
	return func(s *objectSpec[T]) { s.equal = fn }
}

// Object declares a per-entity-object trait whose default comes from factory.
func Object[T any](name string, factory func() T, opts ...ObjectOption[T]) TraitOf[T] {
	spec := &objectSpec[T]{
		factory: factory,
		equal:   deepEqual[T],
	}
	for _, opt := range opts {
		opt(spec)
	}
	t := defineTrait(name, StorageObject, func() store { return newObjectStore(spec) })
	return TraitOf[T]{t}
}

func deepEqual[T any](a, b T) bool { return reflect.DeepEqual(a, b) }

// NewSchemaTrait declares a columnar trait from a runtime field list. Values
// are exchanged as Records.
func NewSchemaTrait(name string, schema Schema) (TraitOf[Record], error) {
	if err := schema.validate(); err != nil {
		return TraitOf[Record]{}, fmt.Errorf("declare %s: %w", name, err)
	}
	t := defineTrait(name, StorageColumnar, func() store { return newRecordStore(schema) })
	return TraitOf[Record]{t}, nil
}
