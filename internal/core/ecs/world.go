package ecs

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IsExcluded hides an entity from every query. The world entity carries it.
var IsExcluded = Tag("IsExcluded")

// World is the top-level ECS container. It owns the entity index, the bitmask
// fabric, the trait registry, the query cache and relation bookkeeping.
// A World is not safe for concurrent use.
type World struct {
	id       uint8
	instance uuid.UUID
	log      *zap.Logger
	strict   bool
	capacity int
	initial  []Component

	index    *entityIndex
	fabric   *fabric
	registry *registry

	queries      map[QueryKey]*Query
	queryList    []*Query
	emptyQueries []*Query
	trackers     map[uint32]*trackerState
	trackerList  []*trackerState

	relations relationIndex
	commands  *CommandBuffer

	entity Entity
	closed bool
}

// Option configures a World.
type Option func(*World)

// WithStrict turns usage errors (dead handles, duplicate adds, missing traits)
// into panics carrying a *UsageError.
func WithStrict(strict bool) Option {
	return func(w *World) { w.strict = strict }
}

func WithLogger(log *zap.Logger) Option {
	return func(w *World) {
		if log != nil {
			w.log = log
		}
	}
}

// WithCapacity preallocates the entity index.
func WithCapacity(n int) Option {
	return func(w *World) {
		if n > 0 {
			w.capacity = n
		}
	}
}

// WithTraits attaches singleton traits to the world entity.
func WithTraits(components ...Component) Option {
	return func(w *World) { w.initial = append(w.initial, components...) }
}

// NewWorld allocates a world id and creates the world entity.
func NewWorld(opts ...Option) (*World, error) {
	w := &World{
		instance: uuid.New(),
		log:      zap.NewNop(),
		capacity: 1024,
	}
	for _, opt := range opts {
		opt(w)
	}
	id, err := allocateWorldID(w)
	if err != nil {
		return nil, err
	}
	w.id = id
	w.log = w.log.With(zap.Uint8("world", id), zap.String("instance", w.instance.String()))
	w.init()
	if err := w.Add(w.entity, w.initial...); err != nil {
		releaseWorldID(id)
		return nil, fmt.Errorf("init world traits: %w", err)
	}
	w.log.Info("world created", zap.Bool("strict", w.strict), zap.Int("capacity", w.capacity))
	return w, nil
}

func (w *World) init() {
	w.index = newEntityIndex(w.id, w.capacity)
	w.fabric = newFabric()
	w.registry = newRegistry()
	w.queries = make(map[QueryKey]*Query)
	w.queryList = nil
	w.emptyQueries = nil
	w.trackers = make(map[uint32]*trackerState)
	w.trackerList = nil
	w.relations = relationIndex{}
	if w.commands == nil {
		w.commands = NewCommandBuffer()
	}
	w.commands.Reset()
	w.entity = w.index.allocate()
	w.addOne(w.entity, IsExcluded, nil, true)
}

func (w *World) ID() uint8 { return w.id }

// Entity is the world entity, used to hold singleton data.
func (w *World) Entity() Entity { return w.entity }

func (w *World) Strict() bool { return w.strict }

// Commands is the world's own deferred command buffer.
func (w *World) Commands() *CommandBuffer { return w.commands }

// Reset destroys every entity and forgets all registrations, queries and
// hooks. The world keeps its id.
func (w *World) Reset() {
	w.init()
	if err := w.Add(w.entity, w.initial...); err != nil {
		w.log.Error("reapply world traits", zap.Error(err))
	}
	w.log.Info("world reset")
}

// Close releases the world id. The world must not be used afterwards.
func (w *World) Close() {
	if w.closed {
		return
	}
	w.closed = true
	releaseWorldID(w.id)
	w.log.Info("world closed")
}

func (w *World) IsAlive(e Entity) bool { return w.index.isAlive(e) }

// Entities returns every live entity except the world entity.
func (w *World) Entities() []Entity {
	alive := w.index.aliveHandles()
	out := make([]Entity, 0, len(alive))
	for _, e := range alive {
		if e != w.entity {
			out = append(out, e)
		}
	}
	return out
}

// TraitsOf lists the traits e currently holds.
func (w *World) TraitsOf(e Entity) []*Trait {
	if !w.index.isAlive(e) {
		return nil
	}
	var out []*Trait
	w.fabric.forEach(e.ID(), func(gen int, flag uint32) {
		if inst := w.registry.byFlag(gen, flag); inst != nil {
			out = append(out, inst.trait)
		}
	})
	return out
}

// Spawn creates an entity and adds components in argument order. If a value
// is rejected the entity is destroyed and the error returned.
func (w *World) Spawn(components ...Component) (Entity, error) {
	e := w.index.allocate()
	for _, q := range w.emptyQueries {
		if q.matches(e.ID()) {
			q.toRemove.remove(e)
			q.entities.add(e)
		}
	}
	if err := w.Add(e, components...); err != nil {
		w.Destroy(e)
		return 0, err
	}
	return e, nil
}

// Add attaches components to e in argument order.
func (w *World) Add(e Entity, components ...Component) error {
	if !w.index.isAlive(e) {
		w.usage("add", e, nil, "entity is not alive")
		return nil
	}
	for _, c := range components {
		t, init := c.component()
		if _, _, err := w.add(e, t, init, true); err != nil {
			return err
		}
	}
	return nil
}

// add routes relation pairs through the relation bookkeeping. It reports the
// instance and whether the trait was actually added.
func (w *World) add(e Entity, t *Trait, init any, notify bool) (*traitInstance, bool, error) {
	if t.relation != nil && t.relation != WildcardRelation && t.target != Wildcard {
		return w.addPair(e, t, init, notify)
	}
	return w.addOne(e, t, init, notify)
}

func (w *World) addOne(e Entity, t *Trait, init any, notify bool) (*traitInstance, bool, error) {
	inst := w.register(t)
	id := e.ID()
	if w.fabric.has(inst.gen, id, inst.flag) {
		w.usage("add", e, t, "trait already present")
		return inst, false, nil
	}
	if inst.store != nil {
		if err := inst.store.add(id, init); err != nil {
			return inst, false, fmt.Errorf("add %s to %s: %w", t.name, e, err)
		}
	}
	w.fabric.set(inst.gen, id, inst.flag)
	w.markDirty(inst, id)
	for _, q := range inst.queries {
		q.onEvent(e, inst, eventAdd)
	}
	if t.orderedBy != nil {
		w.initOrdered(e, inst)
	}
	if notify {
		inst.onAdd.call(e)
	}
	return inst, true, nil
}

// Remove detaches traits from e. Removing rel.Of(Wildcard) clears every
// target of rel.
func (w *World) Remove(e Entity, traits ...AnyTrait) {
	if !w.index.isAlive(e) {
		w.usage("remove", e, nil, "entity is not alive")
		return
	}
	for _, t := range traits {
		w.remove(e, t.base())
	}
}

func (w *World) remove(e Entity, t *Trait) {
	if t.relation != nil && t.relation != WildcardRelation {
		w.removePair(e, t)
		return
	}
	if t.relation == WildcardRelation && t.target != Wildcard {
		w.removeAllTo(e, t)
		return
	}
	inst := w.registry.lookup(t)
	if inst == nil || !w.fabric.has(inst.gen, e.ID(), inst.flag) {
		w.usage("remove", e, t, "trait not present")
		return
	}
	w.removeOne(e, inst)
}

// removeAllTo drops every concrete pair e holds toward t's target, whatever
// the relation. The bookkeeping pairs go with the last of them.
func (w *World) removeAllTo(e Entity, t *Trait) {
	var removed bool
	for _, edge := range w.relations.incomingOf(t.target) {
		if edge.subject != e || !w.Has(e, edge.rel.Of(t.target)) {
			continue
		}
		w.removePair(e, edge.rel.Of(t.target))
		removed = true
	}
	if !removed {
		w.usage("remove", e, t, "trait not present")
	}
}

func (w *World) removeOne(e Entity, inst *traitInstance) {
	id := e.ID()
	inst.onRemove.call(e)
	w.fabric.unset(inst.gen, id, inst.flag)
	w.markDirty(inst, id)
	for _, q := range inst.queries {
		q.onEvent(e, inst, eventRemove)
	}
	if inst.store != nil {
		inst.store.remove(id)
	}
}

func (w *World) Has(e Entity, t AnyTrait) bool {
	if !w.index.isAlive(e) {
		w.usage("has", e, t.base(), "entity is not alive")
		return false
	}
	inst := w.registry.lookup(t.base())
	return inst != nil && w.fabric.has(inst.gen, e.ID(), inst.flag)
}

// holding resolves t for an entity that must be alive and hold it.
func (w *World) holding(op string, e Entity, t *Trait) (*traitInstance, bool) {
	if !w.index.isAlive(e) {
		w.usage(op, e, t, "entity is not alive")
		return nil, false
	}
	inst := w.registry.lookup(t)
	if inst == nil || !w.fabric.has(inst.gen, e.ID(), inst.flag) {
		w.usage(op, e, t, "trait not present")
		return nil, false
	}
	return inst, true
}

// Get returns e's value for t. Tags report (nil, true) when present.
func (w *World) Get(e Entity, t AnyTrait) (any, bool) {
	inst, ok := w.holding("get", e, t.base())
	if !ok {
		return nil, false
	}
	if inst.store == nil {
		return nil, true
	}
	return inst.store.getAny(e.ID()), true
}

// Set writes value and marks t changed. A rejected value leaves the previous
// one in place.
func (w *World) Set(e Entity, t AnyTrait, value any) error {
	inst, ok := w.holding("set", e, t.base())
	if !ok {
		return nil
	}
	if err := w.write(e, inst, value); err != nil {
		return err
	}
	w.changed(e, inst)
	return nil
}

func (w *World) write(e Entity, inst *traitInstance, value any) error {
	if inst.store == nil {
		w.usage("set", e, inst.trait, "tag traits hold no value")
		return nil
	}
	if err := inst.store.setAny(e.ID(), value); err != nil {
		return fmt.Errorf("set %s on %s: %w", inst.trait.name, e, err)
	}
	return nil
}

// MarkChanged flags t as changed on e without writing a value.
func (w *World) MarkChanged(e Entity, t AnyTrait) {
	inst, ok := w.holding("markChanged", e, t.base())
	if !ok {
		return
	}
	w.changed(e, inst)
}

func (w *World) changed(e Entity, inst *traitInstance) {
	w.markChangedBits(inst, e.ID())
	for _, q := range inst.changedQueries {
		q.onEvent(e, inst, eventChange)
	}
	inst.onChange.call(e)
}

// Destroy removes e and cascades through relations: pairs targeting a
// destroyed entity are removed from their subjects, and subjects of
// auto-remove-target relations are destroyed in turn.
func (w *World) Destroy(e Entity) {
	if !w.index.isAlive(e) {
		w.usage("destroy", e, nil, "entity is not alive")
		return
	}
	if e == w.entity {
		w.usage("destroy", e, nil, "the world entity cannot be destroyed")
		return
	}
	queue := []Entity{e}
	seen := make(map[Entity]struct{})
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := seen[cur]; ok || !w.index.isAlive(cur) {
			continue
		}
		seen[cur] = struct{}{}
		for _, edge := range w.relations.incomingOf(cur) {
			if !w.index.isAlive(edge.subject) || !w.Has(edge.subject, edge.rel.Of(cur)) {
				continue
			}
			w.removePair(edge.subject, edge.rel.Of(cur))
			if edge.rel.autoRemoveTarget {
				queue = append(queue, edge.subject)
			}
		}
		w.destroyOne(cur)
	}
}

func (w *World) destroyOne(e Entity) {
	id := e.ID()
	var held []*traitInstance
	w.fabric.forEach(id, func(gen int, flag uint32) {
		if inst := w.registry.byFlag(gen, flag); inst != nil {
			held = append(held, inst)
		}
	})
	for _, inst := range held {
		if !w.fabric.has(inst.gen, id, inst.flag) {
			continue
		}
		t := inst.trait
		if t.relation != nil && t.relation != WildcardRelation && t.target != Wildcard {
			w.removePair(e, t)
			continue
		}
		w.removeOne(e, inst)
	}
	for _, q := range w.emptyQueries {
		q.stageRemoval(e)
	}
	w.relations.forget(e)
	w.index.release(e)
}

func (w *World) logTraitRegistered(inst *traitInstance) {
	w.log.Debug("trait registered",
		zap.String("trait", inst.trait.name),
		zap.Stringer("storage", inst.trait.kind),
		zap.Int("generation", inst.gen),
		zap.Uint32("bitflag", inst.flag),
	)
}

func (w *World) logQueryCreated(q *Query) {
	w.log.Debug("query created",
		zap.String("key", string(q.key)),
		zap.Bool("tracking", q.tracking),
		zap.Int("matches", q.entities.len()),
	)
}
