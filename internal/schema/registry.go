package schema

import (
	"errors"
	"fmt"
	"maps"
	"os"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/pmndrs/koota-sub000/internal/core/ecs"
)

var (
	ErrDuplicate = errors.New("schema: duplicate name")
	ErrUnknown   = errors.New("schema: unknown name")
)

// Storage names accepted in trait declarations.
const (
	StorageTag      = "tag"
	StorageColumnar = "columnar"
	StorageObject   = "object"
)

// FieldDecl declares one field of a trait.
type FieldDecl struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default any    `yaml:"default"`
}

// TraitDecl declares a trait. Columnar traits only accept scalar field types;
// object traits hold a free-form record built from the field defaults.
type TraitDecl struct {
	Name    string      `yaml:"name"`
	Storage string      `yaml:"storage"`
	Fields  []FieldDecl `yaml:"fields"`
}

type RelationDecl struct {
	Name             string `yaml:"name"`
	Exclusive        bool   `yaml:"exclusive"`
	AutoRemoveTarget bool   `yaml:"auto_remove_target"`
}

type traitsFile struct {
	Traits    []TraitDecl    `yaml:"traits"`
	Relations []RelationDecl `yaml:"relations"`
}

type entry struct {
	trait *ecs.Trait
	decl  *TraitDecl // nil for traits declared in Go
}

// Registry resolves trait and relation names case-insensitively.
// Not safe for concurrent use.
type Registry struct {
	fold      cases.Caser
	traits    map[string]*entry
	order     []*ecs.Trait
	relations map[string]*ecs.Relation
}

func NewRegistry() *Registry {
	return &Registry{
		fold:      cases.Fold(),
		traits:    make(map[string]*entry),
		relations: make(map[string]*ecs.Relation),
	}
}

// LoadRegistry loads trait and relation declarations from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trait declarations: %w", err)
	}
	r := NewRegistry()
	if err := r.Parse(raw); err != nil {
		return nil, fmt.Errorf("parse trait declarations %s: %w", path, err)
	}
	return r, nil
}

// Parse declares every trait and relation in a YAML document.
func (r *Registry) Parse(raw []byte) error {
	var f traitsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return err
	}
	for i := range f.Traits {
		if _, err := r.Declare(f.Traits[i]); err != nil {
			return err
		}
	}
	for _, d := range f.Relations {
		if _, err := r.DeclareRelation(d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) key(name string) string { return r.fold.String(name) }

// Declare builds a trait from d and registers it under d.Name.
func (r *Registry) Declare(d TraitDecl) (*ecs.Trait, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("trait without a name")
	}
	if _, dup := r.traits[r.key(d.Name)]; dup {
		return nil, fmt.Errorf("%w: trait %s", ErrDuplicate, d.Name)
	}
	var t *ecs.Trait
	switch d.Storage {
	case StorageTag, "":
		if len(d.Fields) > 0 {
			return nil, fmt.Errorf("tag %s cannot have fields", d.Name)
		}
		t = ecs.Tag(d.Name)
	case StorageColumnar:
		fields, err := columnarSchema(d)
		if err != nil {
			return nil, err
		}
		typed, err := ecs.NewSchemaTrait(d.Name, fields)
		if err != nil {
			return nil, err
		}
		t = typed.Trait
	case StorageObject:
		t = objectTrait(d).Trait
	default:
		return nil, fmt.Errorf("trait %s: unknown storage %q", d.Name, d.Storage)
	}
	decl := d
	r.traits[r.key(d.Name)] = &entry{trait: t, decl: &decl}
	r.order = append(r.order, t)
	return t, nil
}

func columnarSchema(d TraitDecl) (ecs.Schema, error) {
	fields := make(ecs.Schema, 0, len(d.Fields))
	for _, f := range d.Fields {
		kind, ok := ecs.ParseKind(f.Type)
		if !ok {
			return nil, fmt.Errorf("trait %s field %s: %w: type %q is not a scalar", d.Name, f.Name, ecs.ErrNestedSchema, f.Type)
		}
		fields = append(fields, ecs.Field{Name: f.Name, Kind: kind, Default: f.Default})
	}
	return fields, nil
}

func objectTrait(d TraitDecl) ecs.TraitOf[ecs.Record] {
	defaults := make(ecs.Record, len(d.Fields))
	for _, f := range d.Fields {
		defaults[f.Name] = f.Default
	}
	return ecs.Object(d.Name, func() ecs.Record {
		return cloneRecord(defaults)
	}, ecs.WithValidator(func(rec ecs.Record) error {
		if len(d.Fields) == 0 {
			return nil
		}
		for k := range rec {
			if _, ok := defaults[k]; !ok {
				return fmt.Errorf("unknown field %s", k)
			}
		}
		return nil
	}))
}

// Register makes a trait declared in Go reachable by name.
func (r *Registry) Register(t *ecs.Trait) error {
	if _, dup := r.traits[r.key(t.Name())]; dup {
		return fmt.Errorf("%w: trait %s", ErrDuplicate, t.Name())
	}
	r.traits[r.key(t.Name())] = &entry{trait: t}
	r.order = append(r.order, t)
	return nil
}

func (r *Registry) DeclareRelation(d RelationDecl) (*ecs.Relation, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("relation without a name")
	}
	var opts []ecs.RelationOption
	if d.Exclusive {
		opts = append(opts, ecs.Exclusive())
	}
	if d.AutoRemoveTarget {
		opts = append(opts, ecs.AutoRemoveTarget())
	}
	rel := ecs.NewRelation(d.Name, opts...)
	if err := r.RegisterRelation(rel); err != nil {
		return nil, err
	}
	return rel, nil
}

func (r *Registry) RegisterRelation(rel *ecs.Relation) error {
	if _, dup := r.relations[r.key(rel.Name())]; dup {
		return fmt.Errorf("%w: relation %s", ErrDuplicate, rel.Name())
	}
	r.relations[r.key(rel.Name())] = rel
	return nil
}

// Trait looks a trait up by name, ignoring case.
func (r *Registry) Trait(name string) (*ecs.Trait, bool) {
	e, ok := r.traits[r.key(name)]
	if !ok {
		return nil, false
	}
	return e.trait, true
}

func (r *Registry) Relation(name string) (*ecs.Relation, bool) {
	rel, ok := r.relations[r.key(name)]
	return rel, ok
}

// Traits returns the registered traits in declaration order.
func (r *Registry) Traits() []*ecs.Trait { return append([]*ecs.Trait(nil), r.order...) }

// Value builds the init value for adding t from loosely typed field values,
// as decoded from YAML or Lua. Object traits start from a fresh copy of their
// defaults.
func (r *Registry) Value(t *ecs.Trait, values map[string]any) (any, error) {
	e, ok := r.traits[r.key(t.Name())]
	if !ok || e.trait != t {
		return nil, fmt.Errorf("%w: trait %s", ErrUnknown, t.Name())
	}
	switch {
	case t.Kind() == ecs.StorageTag:
		if len(values) > 0 {
			return nil, fmt.Errorf("tag %s takes no values", t.Name())
		}
		return nil, nil
	case e.decl == nil:
		if len(values) > 0 {
			return nil, fmt.Errorf("trait %s is not declared in YAML and takes no loose values", t.Name())
		}
		return nil, nil
	case len(values) == 0:
		return nil, nil
	case e.decl.Storage == StorageObject:
		rec := make(ecs.Record, len(e.decl.Fields)+len(values))
		for _, f := range e.decl.Fields {
			rec[f.Name] = cloneValue(f.Default)
		}
		maps.Copy(rec, cloneRecord(values))
		return rec, nil
	default:
		return ecs.Record(cloneRecord(values)), nil
	}
}

// Patch builds the value for a partial update of t. Columnar records are
// partial natively; object records are merged over current.
func (r *Registry) Patch(t *ecs.Trait, current any, values map[string]any) (any, error) {
	e, ok := r.traits[r.key(t.Name())]
	if !ok || e.trait != t || e.decl == nil || t.Kind() == ecs.StorageTag {
		return nil, fmt.Errorf("%w: trait %s has no loose fields", ErrUnknown, t.Name())
	}
	if e.decl.Storage != StorageObject {
		return ecs.Record(cloneRecord(values)), nil
	}
	prev, _ := current.(ecs.Record)
	rec := cloneRecord(prev)
	maps.Copy(rec, cloneRecord(values))
	return rec, nil
}

func cloneRecord[M ~map[string]any](m M) ecs.Record {
	out := make(ecs.Record, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return map[string]any(cloneRecord(v))
	case ecs.Record:
		return cloneRecord(v)
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = cloneValue(x)
		}
		return out
	}
	return v
}
