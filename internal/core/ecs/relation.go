package ecs

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Relation is a family of pair traits keyed by target entity. Exclusivity and
// auto-remove-target apply to the whole family.
type Relation struct {
	id               uint32
	name             string
	exclusive        bool
	autoRemoveTarget bool
	kind             StorageKind
	newStore         func() store

	mu       sync.Mutex
	wildcard *Trait
	// pairs is the relation's own arena of pair traits, indexed by the
	// target's world id and local slot id.
	pairs [MaxWorlds][]*Trait

	ordered *Trait
}

// RelationOption configures a relation.
type RelationOption func(*Relation)

// Exclusive lets a subject hold at most one target of the relation; adding a
// new target replaces the previous pair.
func Exclusive() RelationOption {
	return func(r *Relation) { r.exclusive = true }
}

// AutoRemoveTarget destroys subjects when their target is destroyed.
func AutoRemoveTarget() RelationOption {
	return func(r *Relation) { r.autoRemoveTarget = true }
}

var nextRelationID atomic.Uint32

// NewRelation declares a tag relation: pairs carry no data.
func NewRelation(name string, opts ...RelationOption) *Relation {
	return newRelation(name, StorageTag, nil, opts)
}

func newRelation(name string, kind StorageKind, newStore func() store, opts []RelationOption) *Relation {
	r := &Relation{
		id:       nextRelationID.Add(1) - 1,
		name:     name,
		kind:     kind,
		newStore: newStore,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wildcard = defineTrait(name+"(*)", StorageTag, nil)
	r.wildcard.relation = r
	r.wildcard.target = Wildcard
	return r
}

// WildcardRelation pairs, (*, target), let "everything related to target"
// be queried without enumerating relations.
var WildcardRelation = NewRelation("*")

func (r *Relation) Name() string           { return r.name }
func (r *Relation) Exclusive() bool        { return r.exclusive }
func (r *Relation) AutoRemoveTarget() bool { return r.autoRemoveTarget }

// Of returns the pair trait for target, creating it on first use.
// Of(Wildcard) matches subjects holding any target of r.
func (r *Relation) Of(target Entity) *Trait {
	if target == Wildcard {
		return r.wildcard
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	wid, id := target.WorldID(), target.ID()
	slots := r.pairs[wid]
	if int(id) < len(slots) {
		if t := slots[id]; t != nil && t.target == target {
			return t
		}
	}
	kind := r.kind
	if r == WildcardRelation {
		kind = StorageTag
	}
	t := defineTrait(fmt.Sprintf("%s(%s)", r.name, target), kind, r.newStore)
	t.relation = r
	t.target = target
	slots = growTo(slots, int(id)+1)
	slots[id] = t
	r.pairs[wid] = slots
	return t
}

// Pair is shorthand for rel.Of(target).
func Pair(rel *Relation, target Entity) *Trait { return rel.Of(target) }

// RelationOf is a relation whose pairs each carry a T.
type RelationOf[T any] struct {
	*Relation
}

// NewDataRelation declares a relation whose pairs hold per-entity values
// produced by factory.
func NewDataRelation[T any](name string, factory func() T, opts ...RelationOption) RelationOf[T] {
	spec := &objectSpec[T]{factory: factory, equal: deepEqual[T]}
	r := newRelation(name, StorageObject, func() store { return newObjectStore(spec) }, opts)
	return RelationOf[T]{r}
}

func (r RelationOf[T]) Of(target Entity) TraitOf[T] { return TraitOf[T]{r.Relation.Of(target)} }

// relationEdge records that subject holds rel.Of(target) for some target.
type relationEdge struct {
	subject Entity
	rel     *Relation
}

// relationIndex is a world's relation bookkeeping.
type relationIndex struct {
	// targets[rel.id][subject.ID()] lists a subject's targets in add order.
	targets [][][]Entity
	// incoming[target.ID()] lists every (subject, relation) pointing at it.
	incoming [][]relationEdge
}

func (x *relationIndex) targetsOf(rel *Relation, subject Entity) []Entity {
	if int(rel.id) >= len(x.targets) {
		return nil
	}
	bySubject := x.targets[rel.id]
	if int(subject.ID()) >= len(bySubject) {
		return nil
	}
	return bySubject[subject.ID()]
}

func (x *relationIndex) link(rel *Relation, subject, target Entity) {
	x.targets = growTo(x.targets, int(rel.id)+1)
	bySubject := growTo(x.targets[rel.id], int(subject.ID())+1)
	bySubject[subject.ID()] = append(bySubject[subject.ID()], target)
	x.targets[rel.id] = bySubject

	x.incoming = growTo(x.incoming, int(target.ID())+1)
	x.incoming[target.ID()] = append(x.incoming[target.ID()], relationEdge{subject: subject, rel: rel})
}

func (x *relationIndex) unlink(rel *Relation, subject, target Entity) {
	if int(rel.id) < len(x.targets) && int(subject.ID()) < len(x.targets[rel.id]) {
		list := x.targets[rel.id][subject.ID()]
		for i, t := range list {
			if t == target {
				x.targets[rel.id][subject.ID()] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	if int(target.ID()) < len(x.incoming) {
		edges := x.incoming[target.ID()]
		for i, edge := range edges {
			if edge.subject == subject && edge.rel == rel {
				x.incoming[target.ID()] = append(edges[:i], edges[i+1:]...)
				break
			}
		}
	}
}

// related reports whether subject holds any relation to target.
func (x *relationIndex) related(subject, target Entity) bool {
	if int(target.ID()) >= len(x.incoming) {
		return false
	}
	for _, edge := range x.incoming[target.ID()] {
		if edge.subject == subject {
			return true
		}
	}
	return false
}

// incomingOf returns a copy of the edges pointing at target.
func (x *relationIndex) incomingOf(target Entity) []relationEdge {
	if int(target.ID()) >= len(x.incoming) {
		return nil
	}
	return append([]relationEdge(nil), x.incoming[target.ID()]...)
}

// forget drops the slot's bookkeeping once the entity is released.
func (x *relationIndex) forget(e Entity) {
	if int(e.ID()) < len(x.incoming) {
		x.incoming[e.ID()] = nil
	}
	for _, bySubject := range x.targets {
		if int(e.ID()) < len(bySubject) {
			bySubject[e.ID()] = nil
		}
	}
}

func (w *World) addPair(e Entity, t *Trait, init any, notify bool) (*traitInstance, bool, error) {
	rel, target := t.relation, t.target
	if target.WorldID() != w.id || !w.index.isAlive(target) {
		w.usage("add", e, t, "target is not alive in this world")
		return nil, false, nil
	}
	if rel.exclusive {
		prevs := append([]Entity(nil), w.relations.targetsOf(rel, e)...)
		for _, prev := range prevs {
			if prev != target {
				w.removePair(e, rel.Of(prev))
			}
		}
	}
	inst, added, err := w.addOne(e, t, init, false)
	if err != nil || !added {
		return inst, added, err
	}
	if len(w.relations.targetsOf(rel, e)) == 0 {
		w.addOne(e, rel.wildcard, nil, true)
	}
	if !w.relations.related(e, target) {
		w.addOne(e, WildcardRelation.Of(target), nil, true)
	}
	w.relations.link(rel, e, target)
	w.log.Debug("relation linked",
		zap.String("relation", rel.name),
		zap.Stringer("subject", e),
		zap.Stringer("target", target),
	)
	w.syncOrderedAdd(rel, e, target)
	if notify {
		inst.onAdd.call(e)
	}
	return inst, true, nil
}

func (w *World) removePair(e Entity, t *Trait) {
	rel, target := t.relation, t.target
	if target == Wildcard {
		targets := append([]Entity(nil), w.relations.targetsOf(rel, e)...)
		if len(targets) == 0 {
			w.usage("remove", e, t, "no targets for relation")
			return
		}
		for _, tgt := range targets {
			w.removePair(e, rel.Of(tgt))
		}
		return
	}
	inst := w.registry.lookup(t)
	if inst == nil || !w.fabric.has(inst.gen, e.ID(), inst.flag) {
		w.usage("remove", e, t, "trait not present")
		return
	}
	w.removeOne(e, inst)
	w.relations.unlink(rel, e, target)
	if len(w.relations.targetsOf(rel, e)) == 0 {
		if wi := w.registry.lookup(rel.wildcard); wi != nil && w.fabric.has(wi.gen, e.ID(), wi.flag) {
			w.removeOne(e, wi)
		}
	}
	if !w.relations.related(e, target) {
		pair := WildcardRelation.Of(target)
		if pi := w.registry.lookup(pair); pi != nil && w.fabric.has(pi.gen, e.ID(), pi.flag) {
			w.removeOne(e, pi)
		}
	}
	w.syncOrderedRemove(rel, e, target)
}

// Targets lists e's targets for rel in the order they were added.
func (w *World) Targets(e Entity, rel *Relation) []Entity {
	if !w.index.isAlive(e) {
		w.usage("targets", e, nil, "entity is not alive")
		return nil
	}
	return append([]Entity(nil), w.relations.targetsOf(rel, e)...)
}

// Target returns e's first target for rel.
func (w *World) Target(e Entity, rel *Relation) (Entity, bool) {
	targets := w.relations.targetsOf(rel, e)
	if !w.index.isAlive(e) || len(targets) == 0 {
		return 0, false
	}
	return targets[0], true
}

// Subjects lists every entity holding rel.Of(target).
func (w *World) Subjects(rel *Relation, target Entity) []Entity {
	var out []Entity
	for _, edge := range w.relations.incomingOf(target) {
		if edge.rel == rel {
			out = append(out, edge.subject)
		}
	}
	return out
}
