package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pmndrs/koota-sub000/internal/core/ecs"
)

// PrefabTrait is one trait of a prefab with optional field values.
type PrefabTrait struct {
	Name   string         `yaml:"name"`
	Values map[string]any `yaml:"values"`
}

// Prefab is a named list of traits spawned together.
type Prefab struct {
	Name   string        `yaml:"name"`
	Traits []PrefabTrait `yaml:"traits"`

	resolved []*ecs.Trait
}

// SpawnEntry asks for Count copies of a prefab at startup.
type SpawnEntry struct {
	Prefab string `yaml:"prefab"`
	Count  int    `yaml:"count"`
}

type prefabsFile struct {
	Prefabs []Prefab     `yaml:"prefabs"`
	Spawn   []SpawnEntry `yaml:"spawn"`
}

// PrefabTable holds prefabs with their trait names resolved against a Registry.
type PrefabTable struct {
	reg     *Registry
	prefabs map[string]*Prefab
	order   []*Prefab
	spawn   []SpawnEntry
}

// LoadPrefabs loads prefabs.yaml.
func LoadPrefabs(path string, reg *Registry) (*PrefabTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prefabs: %w", err)
	}
	t, err := ParsePrefabs(raw, reg)
	if err != nil {
		return nil, fmt.Errorf("parse prefabs %s: %w", path, err)
	}
	return t, nil
}

func ParsePrefabs(raw []byte, reg *Registry) (*PrefabTable, error) {
	var f prefabsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	t := &PrefabTable{
		reg:     reg,
		prefabs: make(map[string]*Prefab, len(f.Prefabs)),
	}
	for i := range f.Prefabs {
		p := &f.Prefabs[i]
		key := reg.key(p.Name)
		if _, dup := t.prefabs[key]; dup {
			return nil, fmt.Errorf("%w: prefab %s", ErrDuplicate, p.Name)
		}
		for _, pt := range p.Traits {
			trait, ok := reg.Trait(pt.Name)
			if !ok {
				return nil, fmt.Errorf("prefab %s: %w: trait %s", p.Name, ErrUnknown, pt.Name)
			}
			if _, err := reg.Value(trait, pt.Values); err != nil {
				return nil, fmt.Errorf("prefab %s: %w", p.Name, err)
			}
			p.resolved = append(p.resolved, trait)
		}
		t.prefabs[key] = p
		t.order = append(t.order, p)
	}
	for _, s := range f.Spawn {
		if _, ok := t.prefabs[reg.key(s.Prefab)]; !ok {
			return nil, fmt.Errorf("spawn: %w: prefab %s", ErrUnknown, s.Prefab)
		}
		if s.Count < 0 {
			return nil, fmt.Errorf("spawn %s: negative count", s.Prefab)
		}
	}
	t.spawn = f.Spawn
	return t, nil
}

// Get returns the prefab with the given name, ignoring case.
func (t *PrefabTable) Get(name string) (*Prefab, bool) {
	p, ok := t.prefabs[t.reg.key(name)]
	return p, ok
}

func (t *PrefabTable) Count() int { return len(t.order) }

// Components builds a fresh component list for one spawn of p.
func (t *PrefabTable) Components(p *Prefab) ([]ecs.Component, error) {
	out := make([]ecs.Component, 0, len(p.resolved))
	for i, trait := range p.resolved {
		v, err := t.reg.Value(trait, p.Traits[i].Values)
		if err != nil {
			return nil, err
		}
		if v == nil {
			out = append(out, trait)
			continue
		}
		out = append(out, trait.With(v))
	}
	return out, nil
}

// Spawn creates one entity from the named prefab.
func (t *PrefabTable) Spawn(w *ecs.World, name string) (ecs.Entity, error) {
	p, ok := t.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: prefab %s", ErrUnknown, name)
	}
	components, err := t.Components(p)
	if err != nil {
		return 0, err
	}
	e, err := w.Spawn(components...)
	if err != nil {
		return 0, fmt.Errorf("spawn %s: %w", p.Name, err)
	}
	return e, nil
}

// SpawnInitial spawns every entry of the file's spawn list in order.
func (t *PrefabTable) SpawnInitial(w *ecs.World) ([]ecs.Entity, error) {
	var out []ecs.Entity
	for _, s := range t.spawn {
		for i := 0; i < s.Count; i++ {
			e, err := t.Spawn(w, s.Prefab)
			if err != nil {
				return out, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}
