package ecs

import (
	"fmt"
	"unsafe"
)

// store is the per-world backing data of one trait, indexed by local slot id.
type store interface {
	// add writes the default (or init, when non-nil) into slot id.
	add(id uint32, init any) error
	remove(id uint32)
	getAny(id uint32) any
	setAny(id uint32, v any) error
}

// typedStore is the hot-path interface used by TraitOf and UpdateEach.
type typedStore[T any] interface {
	store
	get(id uint32) T
	set(id uint32, v T) error
	// setChanged writes v and reports whether any part of it differed.
	setChanged(id uint32, v T) (bool, error)
}

type columnar interface {
	column(field string) (column, bool)
}

// columnStore keeps a flat struct T as one array per field.
type columnStore[T any] struct {
	cols    []column
	factory func() T
	n       int
}

func newColumnStore[T any](layout []columnDef, factory func() T) *columnStore[T] {
	s := &columnStore[T]{factory: factory, cols: make([]column, len(layout))}
	for i, d := range layout {
		s.cols[i] = d.build()
	}
	return s
}

func (s *columnStore[T]) grow(id uint32) {
	if int(id) < s.n {
		return
	}
	s.n = int(id) + 1
	for _, c := range s.cols {
		c.ensure(s.n)
	}
}

func (s *columnStore[T]) add(id uint32, init any) error {
	s.grow(id)
	v := s.factory()
	if init != nil {
		tv, ok := init.(T)
		if !ok {
			return fmt.Errorf("%w: want %T, got %T", ErrValueType, v, init)
		}
		v = tv
	}
	return s.set(id, v)
}

func (s *columnStore[T]) remove(uint32) {}

func (s *columnStore[T]) get(id uint32) T {
	var v T
	p := unsafe.Pointer(&v)
	for _, c := range s.cols {
		c.load(id, p)
	}
	return v
}

func (s *columnStore[T]) set(id uint32, v T) error {
	p := unsafe.Pointer(&v)
	for _, c := range s.cols {
		c.store(id, p)
	}
	return nil
}

func (s *columnStore[T]) setChanged(id uint32, v T) (bool, error) {
	p := unsafe.Pointer(&v)
	changed := false
	for _, c := range s.cols {
		if c.storeChanged(id, p) {
			changed = true
		}
	}
	return changed, nil
}

func (s *columnStore[T]) getAny(id uint32) any { return s.get(id) }

func (s *columnStore[T]) setAny(id uint32, v any) error {
	tv, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w: got %T", ErrValueType, v)
	}
	return s.set(id, tv)
}

func (s *columnStore[T]) column(field string) (column, bool) {
	for _, c := range s.cols {
		if c.field() == field {
			return c, true
		}
	}
	return nil, false
}

// recordStore is a columnar store declared at runtime from a Schema.
type recordStore struct {
	schema Schema
	cols   []column
	byName map[string]column
	n      int
}

func newRecordStore(schema Schema) *recordStore {
	s := &recordStore{
		schema: schema,
		cols:   make([]column, len(schema)),
		byName: make(map[string]column, len(schema)),
	}
	for i, f := range schema {
		c := columnDef{name: f.Name, kind: f.Kind.reflectKind()}.build()
		s.cols[i] = c
		s.byName[f.Name] = c
	}
	return s
}

func (s *recordStore) add(id uint32, init any) error {
	var rec Record
	if init != nil {
		r, ok := init.(Record)
		if !ok {
			return fmt.Errorf("%w: want Record, got %T", ErrValueType, init)
		}
		if err := s.check(r); err != nil {
			return err
		}
		rec = r
	}
	made := make([]any, len(s.schema))
	for i, f := range s.schema {
		if f.Factory == nil {
			continue
		}
		made[i] = f.Factory()
		if err := s.cols[i].check(made[i]); err != nil {
			return fmt.Errorf("factory: %w", err)
		}
	}
	if int(id) >= s.n {
		s.n = int(id) + 1
		for _, c := range s.cols {
			c.ensure(s.n)
		}
	}
	for i, f := range s.schema {
		c := s.cols[i]
		switch {
		case f.Factory != nil:
			c.storeAny(id, made[i])
		case f.Default != nil:
			c.storeAny(id, f.Default)
		default:
			c.zero(id)
		}
	}
	s.write(id, rec)
	return nil
}

func (s *recordStore) remove(uint32) {}

func (s *recordStore) check(rec Record) error {
	for k, v := range rec {
		c, ok := s.byName[k]
		if !ok {
			return fmt.Errorf("%w: unknown field %s", ErrValueType, k)
		}
		if err := c.check(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *recordStore) write(id uint32, rec Record) bool {
	changed := false
	for k, v := range rec {
		if s.byName[k].storeAny(id, v) {
			changed = true
		}
	}
	return changed
}

func (s *recordStore) get(id uint32) Record {
	rec := make(Record, len(s.cols))
	for _, c := range s.cols {
		rec[c.field()] = c.loadAny(id)
	}
	return rec
}

// set is a partial update: fields missing from rec keep their value.
func (s *recordStore) set(id uint32, rec Record) error {
	_, err := s.setChanged(id, rec)
	return err
}

func (s *recordStore) setChanged(id uint32, rec Record) (bool, error) {
	if err := s.check(rec); err != nil {
		return false, err
	}
	return s.write(id, rec), nil
}

func (s *recordStore) getAny(id uint32) any { return s.get(id) }

func (s *recordStore) setAny(id uint32, v any) error {
	rec, ok := v.(Record)
	if !ok {
		return fmt.Errorf("%w: want Record, got %T", ErrValueType, v)
	}
	return s.set(id, rec)
}

func (s *recordStore) column(field string) (column, bool) {
	c, ok := s.byName[field]
	return c, ok
}

type objectSpec[T any] struct {
	factory  func() T
	validate func(T) error
	equal    func(a, b T) bool
}

// objectStore keeps one opaque value per entity.
type objectStore[T any] struct {
	spec *objectSpec[T]
	data []T
}

func newObjectStore[T any](spec *objectSpec[T]) *objectStore[T] {
	return &objectStore[T]{spec: spec}
}

func (s *objectStore[T]) validate(v T) error {
	if s.spec.validate == nil {
		return nil
	}
	if err := s.spec.validate(v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func (s *objectStore[T]) add(id uint32, init any) error {
	var v T
	if init != nil {
		tv, ok := init.(T)
		if !ok {
			return fmt.Errorf("%w: want %T, got %T", ErrValueType, v, init)
		}
		if err := s.validate(tv); err != nil {
			return err
		}
		v = tv
	} else if s.spec.factory != nil {
		v = s.spec.factory()
	}
	s.data = growTo(s.data, int(id)+1)
	s.data[id] = v
	return nil
}

func (s *objectStore[T]) remove(id uint32) {
	if int(id) < len(s.data) {
		var zero T
		s.data[id] = zero
	}
}

func (s *objectStore[T]) get(id uint32) T { return s.data[id] }

func (s *objectStore[T]) set(id uint32, v T) error {
	if err := s.validate(v); err != nil {
		return err
	}
	s.data[id] = v
	return nil
}

// setChanged writes first and compares against the previous value.
func (s *objectStore[T]) setChanged(id uint32, v T) (bool, error) {
	if err := s.validate(v); err != nil {
		return false, err
	}
	prev := s.data[id]
	s.data[id] = v
	return !s.spec.equal(prev, v), nil
}

func (s *objectStore[T]) getAny(id uint32) any { return s.data[id] }

func (s *objectStore[T]) setAny(id uint32, v any) error {
	tv, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w: got %T", ErrValueType, v)
	}
	return s.set(id, tv)
}
