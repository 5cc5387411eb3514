package ecs

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Term is one filter argument of a query: a trait (required) or a modifier.
type Term interface {
	addTo(spec *querySpec)
}

type trackKind uint8

const (
	trackAdded trackKind = iota + 1
	trackRemoved
	trackChanged
)

func (k trackKind) prefix() string {
	switch k {
	case trackAdded:
		return "a"
	case trackRemoved:
		return "r"
	}
	return "c"
}

type trackedTerm struct {
	kind    trackKind
	tracker uint32
	trait   *Trait
}

// querySpec is a query's filter split into categories.
type querySpec struct {
	required  []*Trait
	forbidden []*Trait
	or        []*Trait
	tracked   []trackedTerm
}

func (t *Trait) addTo(spec *querySpec) { spec.required = append(spec.required, t) }

type modifierKind uint8

const (
	modNot modifierKind = iota + 1
	modOr
	modTracked
)

// Modifier is a non-required query term: Not, Or or a tracking term.
type Modifier struct {
	kind    modifierKind
	track   trackKind
	tracker uint32
	traits  []*Trait
}

func (m Modifier) addTo(spec *querySpec) {
	switch m.kind {
	case modNot:
		spec.forbidden = append(spec.forbidden, m.traits...)
	case modOr:
		spec.or = append(spec.or, m.traits...)
	case modTracked:
		for _, t := range m.traits {
			spec.tracked = append(spec.tracked, trackedTerm{kind: m.track, tracker: m.tracker, trait: t})
		}
	}
}

func bases(traits []AnyTrait) []*Trait {
	out := make([]*Trait, len(traits))
	for i, t := range traits {
		out[i] = t.base()
	}
	return out
}

// Not excludes entities holding any of traits.
func Not(traits ...AnyTrait) Modifier { return Modifier{kind: modNot, traits: bases(traits)} }

// Or matches entities holding at least one of traits.
func Or(traits ...AnyTrait) Modifier { return Modifier{kind: modOr, traits: bases(traits)} }

var nextTrackerID atomic.Uint32

// Tracker is a tracking modifier instance. Queries built from the same Tracker
// share its dirty/changed masks; distinct Trackers observe independently.
type Tracker struct {
	kind trackKind
	id   uint32
}

func newTracker(kind trackKind) *Tracker {
	return &Tracker{kind: kind, id: nextTrackerID.Add(1)}
}

// NewAdded returns a modifier matching entities that gained the given traits
// since the query was last read.
func NewAdded() *Tracker { return newTracker(trackAdded) }

// NewRemoved returns a modifier matching entities that lost the given traits
// since the query was last read.
func NewRemoved() *Tracker { return newTracker(trackRemoved) }

// NewChanged returns a modifier matching entities whose trait values were
// marked changed since the query was last read.
func NewChanged() *Tracker { return newTracker(trackChanged) }

func (t *Tracker) Of(traits ...AnyTrait) Modifier {
	return Modifier{kind: modTracked, track: t.kind, tracker: t.id, traits: bases(traits)}
}

// QueryKey identifies a filter independent of argument order and of world.
type QueryKey string

func (s *querySpec) key() QueryKey {
	parts := make([]string, 0, len(s.required)+len(s.forbidden)+len(s.or)+len(s.tracked))
	for _, t := range s.required {
		parts = append(parts, "t"+strconv.FormatUint(uint64(t.id), 10))
	}
	for _, t := range s.forbidden {
		parts = append(parts, "n"+strconv.FormatUint(uint64(t.id), 10))
	}
	for _, t := range s.or {
		parts = append(parts, "o"+strconv.FormatUint(uint64(t.id), 10))
	}
	for _, tt := range s.tracked {
		parts = append(parts, tt.kind.prefix()+strconv.FormatUint(uint64(tt.tracker), 10)+
			":"+strconv.FormatUint(uint64(tt.trait.id), 10))
	}
	slices.Sort(parts)
	parts = slices.Compact(parts)
	return QueryKey(strings.Join(parts, ","))
}

func buildSpec(terms []Term) *querySpec {
	spec := &querySpec{}
	for _, t := range terms {
		t.addTo(spec)
	}
	return spec
}

var queryCache struct {
	mu    sync.Mutex
	specs map[QueryKey]*querySpec
}

// CacheQuery computes a filter's key once so hot paths can call
// World.QueryByKey in any world without rebuilding the term list.
func CacheQuery(terms ...Term) QueryKey {
	spec := buildSpec(terms)
	key := spec.key()
	queryCache.mu.Lock()
	defer queryCache.mu.Unlock()
	if queryCache.specs == nil {
		queryCache.specs = make(map[QueryKey]*querySpec)
	}
	if _, ok := queryCache.specs[key]; !ok {
		queryCache.specs[key] = spec
	}
	return key
}

func cachedSpec(key QueryKey) (*querySpec, bool) {
	queryCache.mu.Lock()
	defer queryCache.mu.Unlock()
	spec, ok := queryCache.specs[key]
	return spec, ok
}
