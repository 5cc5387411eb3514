package ecs

import "math/bits"

// traitInstance is a trait's per-world registration: its slot in the bitmask
// fabric, its backing store, the queries that must be re-evaluated when it is
// added or removed, and its subscribers.
type traitInstance struct {
	trait *Trait
	gen   int
	flag  uint32
	store store

	queries        []*Query
	changedQueries []*Query

	onAdd    hookList
	onRemove hookList
	onChange hookList
}

// tracked reports whether anything observes changes to this trait.
func (inst *traitInstance) tracked() bool {
	return len(inst.changedQueries) > 0 || inst.onChange.len() > 0
}

// registry tracks every trait registered in a world.
type registry struct {
	byID    []*traitInstance
	byBit   [][32]*traitInstance
	ordered []*traitInstance
}

func newRegistry() *registry {
	return &registry{
		byID:    make([]*traitInstance, 0, 64),
		ordered: make([]*traitInstance, 0, 16),
	}
}

func (r *registry) lookup(t *Trait) *traitInstance {
	if int(t.id) < len(r.byID) {
		return r.byID[t.id]
	}
	return nil
}

func (r *registry) add(inst *traitInstance) {
	r.byID = growTo(r.byID, int(inst.trait.id)+1)
	r.byID[inst.trait.id] = inst
	r.byBit = growTo(r.byBit, inst.gen+1)
	r.byBit[inst.gen][bits.TrailingZeros32(inst.flag)] = inst
	r.ordered = append(r.ordered, inst)
}

func (r *registry) byFlag(gen int, flag uint32) *traitInstance {
	if gen >= len(r.byBit) {
		return nil
	}
	return r.byBit[gen][bits.TrailingZeros32(flag)]
}

func (r *registry) reset() {
	r.byID = r.byID[:0]
	r.byBit = r.byBit[:0]
	r.ordered = r.ordered[:0]
}

// register assigns t its (generation, bitflag) pair on first use in w.
func (w *World) register(t *Trait) *traitInstance {
	if inst := w.registry.lookup(t); inst != nil {
		return inst
	}
	gen, flag := w.fabric.next()
	inst := &traitInstance{trait: t, gen: gen, flag: flag}
	if t.newStore != nil {
		inst.store = t.newStore()
	}
	w.registry.add(inst)
	w.logTraitRegistered(inst)
	return inst
}

// Register pre-registers traits so their bit positions are assigned up front.
func (w *World) Register(traits ...AnyTrait) {
	for _, t := range traits {
		w.register(t.base())
	}
}

// Traits lists every trait registered in w, in registration order.
func (w *World) Traits() []*Trait {
	out := make([]*Trait, len(w.registry.ordered))
	for i, inst := range w.registry.ordered {
		out[i] = inst.trait
	}
	return out
}

// AnyTrait is implemented by *Trait and every TraitOf.
type AnyTrait interface {
	base() *Trait
}

func (t *Trait) base() *Trait { return t }
