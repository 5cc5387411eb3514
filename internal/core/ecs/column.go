package ecs

import (
	"fmt"
	"reflect"
	"unsafe"
)

// column is one field array of a columnar store. Each column is specialized
// for its field type and offset when the trait is declared, so record access
// never dispatches on field names or kinds.
type column interface {
	field() string
	ensure(n int)
	zero(i uint32)
	load(i uint32, rec unsafe.Pointer)
	store(i uint32, rec unsafe.Pointer)
	storeChanged(i uint32, rec unsafe.Pointer) bool
	loadAny(i uint32) any
	check(v any) error
	storeAny(i uint32, v any) bool
	values() any
}

type typedColumn[F comparable] struct {
	name   string
	offset uintptr
	data   []F
}

func (c *typedColumn[F]) field() string { return c.name }
func (c *typedColumn[F]) values() any   { return c.data }

func (c *typedColumn[F]) ensure(n int) { c.data = growTo(c.data, n) }

func (c *typedColumn[F]) zero(i uint32) {
	var z F
	c.data[i] = z
}

func (c *typedColumn[F]) load(i uint32, rec unsafe.Pointer) {
	*(*F)(unsafe.Add(rec, c.offset)) = c.data[i]
}

func (c *typedColumn[F]) store(i uint32, rec unsafe.Pointer) {
	c.data[i] = *(*F)(unsafe.Add(rec, c.offset))
}

func (c *typedColumn[F]) storeChanged(i uint32, rec unsafe.Pointer) bool {
	v := *(*F)(unsafe.Add(rec, c.offset))
	if c.data[i] == v {
		return false
	}
	c.data[i] = v
	return true
}

func (c *typedColumn[F]) loadAny(i uint32) any { return c.data[i] }

func (c *typedColumn[F]) check(v any) error {
	if _, ok := convertScalar[F](v); !ok {
		return fmt.Errorf("%w: field %s cannot hold %T", ErrValueType, c.name, v)
	}
	return nil
}

func (c *typedColumn[F]) storeAny(i uint32, v any) bool {
	f, _ := convertScalar[F](v)
	if c.data[i] == f {
		return false
	}
	c.data[i] = f
	return true
}

// convertScalar accepts v when it is an F or a value of the same scalar class
// (numbers convert between widths; bools and strings only to themselves).
func convertScalar[F any](v any) (F, bool) {
	if f, ok := v.(F); ok {
		return f, true
	}
	var zero F
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return zero, false
	}
	ft := reflect.TypeOf((*F)(nil)).Elem()
	class := scalarClass(rv.Kind())
	if class == 0 || class != scalarClass(ft.Kind()) {
		return zero, false
	}
	return rv.Convert(ft).Interface().(F), true
}

func scalarClass(k reflect.Kind) int {
	switch k {
	case reflect.Bool:
		return 1
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return 2
	case reflect.String:
		return 3
	}
	return 0
}

// columnDef is the declaration-time description of one column.
type columnDef struct {
	name   string
	kind   reflect.Kind
	offset uintptr
}

func (d columnDef) build() column {
	switch d.kind {
	case reflect.Bool:
		return &typedColumn[bool]{name: d.name, offset: d.offset}
	case reflect.Int:
		return &typedColumn[int]{name: d.name, offset: d.offset}
	case reflect.Int8:
		return &typedColumn[int8]{name: d.name, offset: d.offset}
	case reflect.Int16:
		return &typedColumn[int16]{name: d.name, offset: d.offset}
	case reflect.Int32:
		return &typedColumn[int32]{name: d.name, offset: d.offset}
	case reflect.Int64:
		return &typedColumn[int64]{name: d.name, offset: d.offset}
	case reflect.Uint:
		return &typedColumn[uint]{name: d.name, offset: d.offset}
	case reflect.Uint8:
		return &typedColumn[uint8]{name: d.name, offset: d.offset}
	case reflect.Uint16:
		return &typedColumn[uint16]{name: d.name, offset: d.offset}
	case reflect.Uint32:
		return &typedColumn[uint32]{name: d.name, offset: d.offset}
	case reflect.Uint64:
		return &typedColumn[uint64]{name: d.name, offset: d.offset}
	case reflect.Float32:
		return &typedColumn[float32]{name: d.name, offset: d.offset}
	case reflect.Float64:
		return &typedColumn[float64]{name: d.name, offset: d.offset}
	case reflect.String:
		return &typedColumn[string]{name: d.name, offset: d.offset}
	}
	panic(fmt.Sprintf("ecs: no column for kind %s", d.kind))
}

// structLayout validates that t is a struct of scalar fields and records each
// field's offset.
func structLayout(t reflect.Type) ([]columnDef, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrNestedSchema, t)
	}
	defs := make([]columnDef, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if scalarClass(f.Type.Kind()) == 0 {
			return nil, fmt.Errorf("%w: field %s.%s is %s", ErrNestedSchema, t.Name(), f.Name, f.Type.Kind())
		}
		defs = append(defs, columnDef{name: f.Name, kind: f.Type.Kind(), offset: f.Offset})
	}
	return defs, nil
}

// Kind is the scalar type of a schema field.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindInt32
	KindInt64
	KindUint32
	KindFloat32
	KindFloat64
	KindString
)

var kindNames = map[Kind]string{
	KindBool: "bool", KindInt: "int", KindInt32: "int32", KindInt64: "int64",
	KindUint32: "uint32", KindFloat32: "float32", KindFloat64: "float64", KindString: "string",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a type name ("float64", "int", ...) to a Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindInvalid, false
}

func (k Kind) reflectKind() reflect.Kind {
	switch k {
	case KindBool:
		return reflect.Bool
	case KindInt:
		return reflect.Int
	case KindInt32:
		return reflect.Int32
	case KindInt64:
		return reflect.Int64
	case KindUint32:
		return reflect.Uint32
	case KindFloat32:
		return reflect.Float32
	case KindFloat64:
		return reflect.Float64
	case KindString:
		return reflect.String
	}
	return reflect.Invalid
}

// Field declares one column of a runtime schema. Default is copied into new
// entities; Factory, when set, is called instead on every add.
type Field struct {
	Name    string
	Kind    Kind
	Default any
	Factory func() any
}

// Schema is a flat runtime field list.
type Schema []Field

// Record is the value exchanged with schema traits, keyed by field name.
type Record map[string]any

func (s Schema) validate() error {
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if f.Name == "" {
			return fmt.Errorf("%w: unnamed field", ErrNestedSchema)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field %s", ErrNestedSchema, f.Name)
		}
		seen[f.Name] = true
		if f.Kind.reflectKind() == reflect.Invalid {
			return fmt.Errorf("%w: field %s has no scalar kind", ErrNestedSchema, f.Name)
		}
		if f.Default != nil && scalarClass(reflect.ValueOf(f.Default).Kind()) != scalarClass(f.Kind.reflectKind()) {
			return fmt.Errorf("%w: field %s default %T is not a %s", ErrNestedSchema, f.Name, f.Default, f.Kind)
		}
	}
	return nil
}
