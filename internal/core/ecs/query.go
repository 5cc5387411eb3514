package ecs

type eventKind uint8

const (
	eventAdd eventKind = iota + 1
	eventRemove
	eventChange
)

// shard holds a query's masks for one fabric generation, plus the per-entity
// tracker words accumulated for tracking terms in that generation.
type shard struct {
	gen       int
	required  uint32
	forbidden uint32
	or        uint32
	added     uint32
	removed   uint32
	changed   uint32

	addedTracker   []uint32
	removedTracker []uint32
	changedTracker []uint32
}

func (s *shard) tracking() bool { return s.added|s.removed|s.changed != 0 }

// boundTerm is a tracking term resolved against a world.
type boundTerm struct {
	kind  trackKind
	inst  *traitInstance
	state *trackerState
}

// Query is a cached, incrementally maintained entity set for one filter.
type Query struct {
	world    *World
	key      QueryKey
	shards   []shard
	traits   []*traitInstance
	tracked  []boundTerm
	tracking bool

	entities sparseSet
	toRemove sparseSet
}

func (q *Query) Key() QueryKey { return q.key }

func (q *Query) shard(gen int) *shard {
	for i := range q.shards {
		if q.shards[i].gen == gen {
			return &q.shards[i]
		}
	}
	return nil
}

func (q *Query) shardFor(gen int) *shard {
	if s := q.shard(gen); s != nil {
		return s
	}
	q.shards = append(q.shards, shard{gen: gen})
	return &q.shards[len(q.shards)-1]
}

func (q *Query) reference(inst *traitInstance) {
	for _, existing := range q.traits {
		if existing == inst {
			return
		}
	}
	q.traits = append(q.traits, inst)
	inst.queries = append(inst.queries, q)
}

// newQuery registers every trait the filter names, computes the per-generation
// shards and seeds the result set.
func newQuery(w *World, key QueryKey, spec *querySpec) *Query {
	q := &Query{world: w, key: key}

	excluded := w.register(IsExcluded)
	q.shardFor(excluded.gen).forbidden |= excluded.flag

	for _, t := range spec.required {
		inst := w.register(t)
		q.shardFor(inst.gen).required |= inst.flag
		q.reference(inst)
	}
	for _, t := range spec.forbidden {
		inst := w.register(t)
		q.shardFor(inst.gen).forbidden |= inst.flag
		q.reference(inst)
	}
	for _, t := range spec.or {
		inst := w.register(t)
		q.shardFor(inst.gen).or |= inst.flag
		q.reference(inst)
	}
	for _, tt := range spec.tracked {
		inst := w.register(tt.trait)
		s := q.shardFor(inst.gen)
		switch tt.kind {
		case trackAdded:
			s.added |= inst.flag
		case trackRemoved:
			s.removed |= inst.flag
		case trackChanged:
			s.changed |= inst.flag
			inst.changedQueries = append(inst.changedQueries, q)
		}
		q.reference(inst)
		q.tracked = append(q.tracked, boundTerm{kind: tt.kind, inst: inst, state: w.trackerState(tt.tracker)})
		q.tracking = true
	}

	for _, e := range w.index.aliveHandles() {
		if q.tracking {
			q.seedTracking(e)
		} else if q.matches(e.ID()) {
			q.entities.add(e)
		}
	}
	return q
}

// matchesEmpty reports whether an entity with no traits can satisfy q.
func (q *Query) matchesEmpty() bool {
	if q.tracking {
		return false
	}
	for i := range q.shards {
		if q.shards[i].required != 0 || q.shards[i].or != 0 {
			return false
		}
	}
	return true
}

// matchesShape checks the static required/forbidden/or masks.
func (q *Query) matchesShape(id uint32) bool {
	f := q.world.fabric
	for i := range q.shards {
		s := &q.shards[i]
		m := f.get(s.gen, id)
		if m&s.forbidden != 0 {
			return false
		}
		if m&s.required != s.required {
			return false
		}
		if s.or != 0 && m&s.or == 0 {
			return false
		}
	}
	return true
}

// matches additionally requires every tracked trait to have transitioned.
func (q *Query) matches(id uint32) bool {
	if !q.matchesShape(id) {
		return false
	}
	if !q.tracking {
		return true
	}
	for i := range q.shards {
		s := &q.shards[i]
		if s.added != 0 && wordAt(s.addedTracker, id)&s.added != s.added {
			return false
		}
		if s.removed != 0 && wordAt(s.removedTracker, id)&s.removed != s.removed {
			return false
		}
		if s.changed != 0 && wordAt(s.changedTracker, id)&s.changed != s.changed {
			return false
		}
	}
	return true
}

// onEvent re-evaluates e after inst was added, removed or changed on it.
func (q *Query) onEvent(e Entity, inst *traitInstance, kind eventKind) {
	id := e.ID()
	if q.tracking {
		if s := q.shard(inst.gen); s != nil && s.tracking() {
			flag := inst.flag
			switch kind {
			case eventAdd:
				if s.removed&flag != 0 {
					clearWord(s.removedTracker, id, flag)
				}
				if s.added&flag != 0 {
					s.addedTracker = setWord(s.addedTracker, id, flag)
				}
			case eventRemove:
				if s.added&flag != 0 {
					clearWord(s.addedTracker, id, flag)
				}
				if s.removed&flag != 0 {
					s.removedTracker = setWord(s.removedTracker, id, flag)
				}
				if s.changed&flag != 0 {
					clearWord(s.changedTracker, id, flag)
				}
			case eventChange:
				if s.changed&flag != 0 {
					s.changedTracker = setWord(s.changedTracker, id, flag)
				}
			}
		}
	}
	if q.matches(id) {
		q.toRemove.remove(e)
		q.entities.add(e)
	} else {
		q.stageRemoval(e)
	}
}

// stageRemoval defers dropping e until the next read so callers iterating an
// earlier result never see indices shift underneath them.
func (q *Query) stageRemoval(e Entity) {
	if q.entities.has(e) {
		q.toRemove.add(e)
	}
}

func (q *Query) commitRemovals() {
	for _, e := range q.toRemove.dense {
		q.entities.remove(e)
	}
	q.toRemove.clear()
}

// seedTracking adds e when the trackers it uses already recorded a qualifying
// transition before this query existed.
func (q *Query) seedTracking(e Entity) {
	id := e.ID()
	if !q.matchesShape(id) {
		return
	}
	f := q.world.fabric
	for _, bt := range q.tracked {
		gen, flag := bt.inst.gen, bt.inst.flag
		current := f.has(gen, id, flag)
		before := maskAt(bt.state.snapshot, gen, id)&flag != 0
		dirty := maskAt(bt.state.dirty, gen, id)&flag != 0
		switch bt.kind {
		case trackAdded:
			if !dirty || !current || before {
				return
			}
		case trackRemoved:
			if !dirty || current || !before {
				return
			}
		case trackChanged:
			if !current || maskAt(bt.state.changed, gen, id)&flag == 0 {
				return
			}
		}
	}
	for _, bt := range q.tracked {
		s := q.shard(bt.inst.gen)
		switch bt.kind {
		case trackAdded:
			s.addedTracker = setWord(s.addedTracker, id, bt.inst.flag)
		case trackRemoved:
			s.removedTracker = setWord(s.removedTracker, id, bt.inst.flag)
		case trackChanged:
			s.changedTracker = setWord(s.changedTracker, id, bt.inst.flag)
		}
	}
	q.entities.add(e)
}

// read commits staged removals and returns a copy of the result. Tracking
// queries are drained: their set and trackers reset for every returned entity.
func (q *Query) read() []Entity {
	q.commitRemovals()
	out := make([]Entity, len(q.entities.dense))
	copy(out, q.entities.dense)
	if q.tracking {
		for _, e := range out {
			q.resetTracking(e)
		}
		q.entities.clear()
	}
	return out
}

func (q *Query) resetTracking(e Entity) {
	id := e.ID()
	for i := range q.shards {
		s := &q.shards[i]
		if !s.tracking() {
			continue
		}
		clearWord(s.addedTracker, id, ^uint32(0))
		clearWord(s.removedTracker, id, ^uint32(0))
		clearWord(s.changedTracker, id, ^uint32(0))
	}
	for _, bt := range q.tracked {
		bt.state.reset(q.world.fabric, bt.inst.gen, id)
	}
}

func wordAt(words []uint32, id uint32) uint32 {
	if int(id) < len(words) {
		return words[id]
	}
	return 0
}

func setWord(words []uint32, id uint32, flag uint32) []uint32 {
	words = growTo(words, int(id)+1)
	words[id] |= flag
	return words
}

func clearWord(words []uint32, id uint32, flag uint32) {
	if int(id) < len(words) {
		words[id] &^= flag
	}
}

// trackerState is the per-world memory of one Tracker: a snapshot of the
// fabric when tracking began and the dirty/changed bits accumulated since.
type trackerState struct {
	snapshot [][]uint32
	dirty    [][]uint32
	changed  [][]uint32
}

func (st *trackerState) reset(f *fabric, gen int, id uint32) {
	st.snapshot = growTo(st.snapshot, gen+1)
	m := growTo(st.snapshot[gen], int(id)+1)
	m[id] = f.get(gen, id)
	st.snapshot[gen] = m
	unsetMaskAt(st.dirty, gen, id, ^uint32(0))
	unsetMaskAt(st.changed, gen, id, ^uint32(0))
}

func (w *World) trackerState(id uint32) *trackerState {
	if st, ok := w.trackers[id]; ok {
		return st
	}
	st := &trackerState{snapshot: w.fabric.snapshot()}
	w.trackers[id] = st
	w.trackerList = append(w.trackerList, st)
	return st
}

func (w *World) markDirty(inst *traitInstance, id uint32) {
	for _, st := range w.trackerList {
		st.dirty = setMaskAt(st.dirty, inst.gen, id, inst.flag)
	}
}

func (w *World) markChangedBits(inst *traitInstance, id uint32) {
	for _, st := range w.trackerList {
		st.changed = setMaskAt(st.changed, inst.gen, id, inst.flag)
	}
}

// Query returns the entities matching terms. Static filters return their live
// materialized set; tracking filters return what accumulated since the last
// read and then start over.
func (w *World) Query(terms ...Term) QueryResult {
	spec := buildSpec(terms)
	return w.run(w.queryFor(spec.key(), spec))
}

// QueryByKey runs a filter previously registered with CacheQuery.
func (w *World) QueryByKey(key QueryKey) QueryResult {
	q, ok := w.queries[key]
	if !ok {
		spec, found := cachedSpec(key)
		if !found {
			return QueryResult{world: w}
		}
		q = w.queryFor(key, spec)
	}
	return w.run(q)
}

// QueryFirst returns the first match of terms.
func (w *World) QueryFirst(terms ...Term) (Entity, bool) {
	r := w.Query(terms...)
	if r.Len() == 0 {
		return 0, false
	}
	return r.entities[0], true
}

func (w *World) queryFor(key QueryKey, spec *querySpec) *Query {
	if q, ok := w.queries[key]; ok {
		return q
	}
	q := newQuery(w, key, spec)
	w.queries[key] = q
	w.queryList = append(w.queryList, q)
	if q.matchesEmpty() {
		w.emptyQueries = append(w.emptyQueries, q)
	}
	w.logQueryCreated(q)
	return q
}

func (w *World) run(q *Query) QueryResult {
	return QueryResult{world: w, entities: q.read()}
}
