package ecs

import (
	"slices"
)

// Ordered returns the ordered-list trait for rel. An entity holding it sees
// its rel targets as a sequence: structural list edits add or remove the
// matching pairs, and pairs added or removed directly show up in the list.
func Ordered(rel *Relation) TraitOf[*OrderedList] {
	rel.mu.Lock()
	defer rel.mu.Unlock()
	if rel.ordered == nil {
		spec := &objectSpec[*OrderedList]{
			factory: func() *OrderedList { return &OrderedList{} },
			equal:   func(a, b *OrderedList) bool { return a == b },
		}
		t := defineTrait("Ordered("+rel.name+")", StorageObject, func() store { return newObjectStore(spec) })
		t.orderedBy = rel
		rel.ordered = t
	}
	return TraitOf[*OrderedList]{rel.ordered}
}

// OrderedList is the sequence view of one entity's targets for a relation.
// Sort, Reverse and Move only reorder; every other mutation changes
// membership and marks the list trait changed.
type OrderedList struct {
	w     *World
	owner Entity
	rel   *Relation
	inst  *traitInstance
	items []Entity
}

func (w *World) initOrdered(e Entity, inst *traitInstance) {
	list, ok := inst.store.getAny(e.ID()).(*OrderedList)
	if !ok || list == nil {
		return
	}
	list.w = w
	list.owner = e
	list.rel = inst.trait.orderedBy
	list.inst = inst
	list.items = append(list.items[:0], w.relations.targetsOf(list.rel, e)...)
}

// orderedList returns e's list for rel when e holds Ordered(rel).
func (w *World) orderedList(rel *Relation, e Entity) *OrderedList {
	if rel.ordered == nil {
		return nil
	}
	inst := w.registry.lookup(rel.ordered)
	if inst == nil || !w.fabric.has(inst.gen, e.ID(), inst.flag) {
		return nil
	}
	list, _ := inst.store.getAny(e.ID()).(*OrderedList)
	return list
}

func (w *World) syncOrderedAdd(rel *Relation, e, target Entity) {
	list := w.orderedList(rel, e)
	if list == nil || list.index(target) >= 0 {
		return
	}
	list.items = append(list.items, target)
	w.changed(e, list.inst)
}

func (w *World) syncOrderedRemove(rel *Relation, e, target Entity) {
	list := w.orderedList(rel, e)
	if list == nil {
		return
	}
	i := list.index(target)
	if i < 0 {
		return
	}
	list.items = slices.Delete(list.items, i, i+1)
	w.changed(e, list.inst)
}

func (l *OrderedList) index(target Entity) int {
	return slices.Index(l.items, target)
}

func (l *OrderedList) Len() int { return len(l.items) }

func (l *OrderedList) At(i int) Entity { return l.items[i] }

// Items returns a copy of the sequence.
func (l *OrderedList) Items() []Entity { return slices.Clone(l.items) }

// link adds the pair for each target the owner does not already hold.
func (l *OrderedList) link(targets []Entity) {
	for _, t := range targets {
		pair := l.rel.Of(t)
		if inst := l.w.registry.lookup(pair); inst != nil && l.w.fabric.has(inst.gen, l.owner.ID(), inst.flag) {
			continue
		}
		if _, _, err := l.w.add(l.owner, pair, nil, true); err != nil {
			l.w.log.Sugar().Warnf("ordered %s: link %s: %v", l.rel.name, t, err)
		}
	}
}

func (l *OrderedList) unlink(targets []Entity) {
	for _, t := range targets {
		pair := l.rel.Of(t)
		if inst := l.w.registry.lookup(pair); inst != nil && l.w.fabric.has(inst.gen, l.owner.ID(), inst.flag) {
			l.w.removePair(l.owner, pair)
		}
	}
}

// fresh filters out targets already in the list or repeated in targets.
func (l *OrderedList) fresh(targets []Entity) []Entity {
	out := make([]Entity, 0, len(targets))
	for _, t := range targets {
		if l.index(t) < 0 && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func (l *OrderedList) touch() {
	if l.w != nil && l.w.index.isAlive(l.owner) {
		l.w.changed(l.owner, l.inst)
	}
}

// Append adds targets at the end and relates the owner to each of them.
func (l *OrderedList) Append(targets ...Entity) {
	l.Insert(len(l.items), targets...)
}

// Prepend adds targets at the front.
func (l *OrderedList) Prepend(targets ...Entity) {
	l.Insert(0, targets...)
}

// Insert places targets before index i. Targets already present are skipped.
func (l *OrderedList) Insert(i int, targets ...Entity) {
	add := l.fresh(targets)
	if len(add) == 0 {
		return
	}
	i = min(max(i, 0), len(l.items))
	l.items = slices.Insert(l.items, i, add...)
	l.link(add)
	l.touch()
}

// Splice removes deleteCount items at start, inserts targets there and
// returns what was removed. A removed target that is inserted again keeps its
// pair.
func (l *OrderedList) Splice(start, deleteCount int, targets ...Entity) []Entity {
	start = min(max(start, 0), len(l.items))
	end := min(start+max(deleteCount, 0), len(l.items))
	removed := slices.Clone(l.items[start:end])
	l.items = slices.Delete(l.items, start, end)
	add := l.fresh(targets)
	l.items = slices.Insert(l.items, start, add...)
	if len(removed) == 0 && len(add) == 0 {
		return removed
	}
	dropped := slices.DeleteFunc(slices.Clone(removed), func(e Entity) bool { return slices.Contains(add, e) })
	linked := slices.DeleteFunc(slices.Clone(add), func(e Entity) bool { return slices.Contains(removed, e) })
	l.unlink(dropped)
	l.link(linked)
	l.touch()
	return removed
}

// RemoveAt drops the item at i and its pair. It reports false when i is out
// of range.
func (l *OrderedList) RemoveAt(i int) (Entity, bool) {
	if i < 0 || i >= len(l.items) {
		return 0, false
	}
	return l.Splice(i, 1)[0], true
}

// Remove drops target if present.
func (l *OrderedList) Remove(target Entity) bool {
	i := l.index(target)
	if i < 0 {
		return false
	}
	l.RemoveAt(i)
	return true
}

// Sort orders the sequence with cmp. Membership is untouched.
func (l *OrderedList) Sort(cmp func(a, b Entity) int) {
	slices.SortStableFunc(l.items, cmp)
}

func (l *OrderedList) Reverse() {
	slices.Reverse(l.items)
}

// Move relocates the item at from to index to.
func (l *OrderedList) Move(from, to int) {
	if from == to || from < 0 || from >= len(l.items) {
		return
	}
	e := l.items[from]
	l.items = slices.Delete(l.items, from, from+1)
	to = min(max(to, 0), len(l.items))
	l.items = slices.Insert(l.items, to, e)
}
