package ecs

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Op is a command buffer opcode.
type Op uint32

const (
	OpAdd Op = iota + 1
	OpRemove
	OpSet
	OpMarkChanged
	OpDestroy
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpSet:
		return "set"
	case OpMarkChanged:
		return "markChanged"
	case OpDestroy:
		return "destroy"
	}
	return fmt.Sprintf("Op(%d)", uint32(op))
}

// WordsPerInstruction is the fixed width of an encoded instruction:
// op, entity, trait id, value index.
const WordsPerInstruction = 4

// NoOperand fills the trait and value words when an instruction has none.
const NoOperand = ^uint32(0)

// Instruction is one decoded command.
type Instruction struct {
	Op     Op
	Entity Entity
	Trait  *Trait
	Value  any
}

// CommandBuffer records mutations as a flat instruction stream and replays
// them against a World in recording order. Values that do not fit a word live
// in a side table referenced by index.
type CommandBuffer struct {
	words  []uint32
	values []any
}

func NewCommandBuffer() *CommandBuffer {
	return &CommandBuffer{
		words:  make([]uint32, 0, 64*WordsPerInstruction),
		values: make([]any, 0, 16),
	}
}

// Record appends one instruction. t may be nil for OpDestroy; value is only
// meaningful for OpAdd and OpSet.
func (b *CommandBuffer) Record(op Op, e Entity, t AnyTrait, value any) {
	traitID, valueIdx := NoOperand, NoOperand
	if t != nil {
		traitID = t.base().id
	}
	if value != nil {
		valueIdx = uint32(len(b.values))
		b.values = append(b.values, value)
	}
	b.words = append(b.words, uint32(op), uint32(e), traitID, valueIdx)
}

func (b *CommandBuffer) Add(e Entity, components ...Component) {
	for _, c := range components {
		t, init := c.component()
		b.Record(OpAdd, e, t, init)
	}
}

func (b *CommandBuffer) Remove(e Entity, traits ...AnyTrait) {
	for _, t := range traits {
		b.Record(OpRemove, e, t, nil)
	}
}

func (b *CommandBuffer) Set(e Entity, t AnyTrait, value any) {
	b.Record(OpSet, e, t, value)
}

func (b *CommandBuffer) MarkChanged(e Entity, t AnyTrait) {
	b.Record(OpMarkChanged, e, t, nil)
}

func (b *CommandBuffer) Destroy(e Entity) {
	b.Record(OpDestroy, e, nil, nil)
}

// Len is the number of recorded instructions.
func (b *CommandBuffer) Len() int { return len(b.words) / WordsPerInstruction }

// Words exposes the encoded stream. It is valid until the next Record or Reset.
func (b *CommandBuffer) Words() []uint32 { return b.words }

// Values exposes the side table referenced by the value word.
func (b *CommandBuffer) Values() []any { return b.values }

// At decodes instruction i.
func (b *CommandBuffer) At(i int) Instruction { return decode(b.words, b.values, i) }

func decode(words []uint32, values []any, i int) Instruction {
	w := words[i*WordsPerInstruction : (i+1)*WordsPerInstruction]
	in := Instruction{Op: Op(w[0]), Entity: Entity(w[1])}
	if w[2] != NoOperand {
		in.Trait, _ = TraitByID(w[2])
	}
	if w[3] != NoOperand {
		in.Value = values[w[3]]
	}
	return in
}

// requeue rebuilds the buffer as words[from:] followed by whatever was
// recorded since the stream was detached, remapping value indices.
func (b *CommandBuffer) requeue(words []uint32, values []any, from int) {
	recorded, recordedValues := b.words, b.values
	b.words = make([]uint32, 0, len(words)+len(recorded))
	b.values = make([]any, 0, len(values)+len(recordedValues))
	if from*WordsPerInstruction < len(words) {
		b.appendWords(words[from*WordsPerInstruction:], values)
	}
	b.appendWords(recorded, recordedValues)
}

func (b *CommandBuffer) appendWords(words []uint32, values []any) {
	for i := 0; i+WordsPerInstruction <= len(words); i += WordsPerInstruction {
		valueIdx := words[i+3]
		if valueIdx != NoOperand {
			b.values = append(b.values, values[valueIdx])
			valueIdx = uint32(len(b.values) - 1)
		}
		b.words = append(b.words, words[i], words[i+1], words[i+2], valueIdx)
	}
}

func (b *CommandBuffer) Reset() {
	b.words = b.words[:0]
	clear(b.values)
	b.values = b.values[:0]
}

type pendingKey struct {
	e     Entity
	trait uint32
}

// pendingAdd is an add whose notification waits for the value to be written.
type pendingAdd struct {
	e       Entity
	inst    *traitInstance
	dropped bool
}

// addNotifier defers onAdd hooks during a flush.
type addNotifier struct {
	w       *World
	pending []pendingAdd
	byKey   map[pendingKey]int
}

func (n *addNotifier) hold(e Entity, inst *traitInstance) {
	n.byKey[pendingKey{e, inst.trait.id}] = len(n.pending)
	n.pending = append(n.pending, pendingAdd{e: e, inst: inst})
}

// fire runs the deferred notification for (e, t) now, if one is waiting.
func (n *addNotifier) fire(e Entity, t *Trait) {
	key := pendingKey{e, t.id}
	i, ok := n.byKey[key]
	if !ok {
		return
	}
	delete(n.byKey, key)
	p := &n.pending[i]
	if p.dropped {
		return
	}
	p.dropped = true
	p.inst.onAdd.call(e)
}

// drop forgets pending adds of e that are no longer held.
func (n *addNotifier) drop(e Entity) {
	alive := n.w.index.isAlive(e)
	for i := range n.pending {
		p := &n.pending[i]
		if p.dropped || p.e != e {
			continue
		}
		if !alive || !n.w.fabric.has(p.inst.gen, e.ID(), p.inst.flag) {
			p.dropped = true
			delete(n.byKey, pendingKey{e, p.inst.trait.id})
		}
	}
}

func (n *addNotifier) flush() {
	for i := range n.pending {
		p := &n.pending[i]
		if p.dropped {
			continue
		}
		p.dropped = true
		if n.w.index.isAlive(p.e) && n.w.fabric.has(p.inst.gen, p.e.ID(), p.inst.flag) {
			p.inst.onAdd.call(p.e)
		}
	}
	n.pending = n.pending[:0]
	clear(n.byKey)
}

// Flush replays every instruction against w and clears the buffer. An add
// followed by a set of the same trait notifies add subscribers only once the
// value is written; an add removed again in the same flush never notifies.
// Rejected values do not stop the replay; their errors are combined.
// Commands recorded by hooks during the replay are kept for the next flush.
// If replay panics (a strict-mode usage error or a hook), the instructions
// not yet replayed are put back ahead of any hook-recorded ones before the
// panic propagates, so a later flush resumes where this one stopped.
func (b *CommandBuffer) Flush(w *World) error {
	n := b.Len()
	if n == 0 {
		return nil
	}
	words, values := b.words, b.values
	b.words = make([]uint32, 0, cap(words))
	b.values = make([]any, 0, cap(values))
	notifier := &addNotifier{w: w, byKey: make(map[pendingKey]int)}
	var errs error
	i := 0
	defer func() {
		if r := recover(); r != nil {
			b.requeue(words, values, i+1)
			w.log.Warn("command buffer replay aborted",
				zap.Int("replayed", i), zap.Int("requeued", b.Len()))
			panic(r)
		}
	}()
	for ; i < n; i++ {
		in := decode(words, values, i)
		if in.Op != OpDestroy && in.Trait == nil {
			errs = multierr.Append(errs, fmt.Errorf("instruction %d: unknown trait", i))
			continue
		}
		if !w.index.isAlive(in.Entity) {
			w.usage(in.Op.String(), in.Entity, in.Trait, "entity is not alive")
			continue
		}
		switch in.Op {
		case OpAdd:
			inst, added, err := w.add(in.Entity, in.Trait, in.Value, false)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if added {
				notifier.hold(in.Entity, inst)
			}
		case OpRemove:
			w.remove(in.Entity, in.Trait)
			notifier.drop(in.Entity)
		case OpSet:
			inst, ok := w.holding("set", in.Entity, in.Trait)
			if !ok {
				continue
			}
			if err := w.write(in.Entity, inst, in.Value); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			notifier.fire(in.Entity, in.Trait)
			w.changed(in.Entity, inst)
		case OpMarkChanged:
			inst, ok := w.holding("markChanged", in.Entity, in.Trait)
			if !ok {
				continue
			}
			notifier.fire(in.Entity, in.Trait)
			w.changed(in.Entity, inst)
		case OpDestroy:
			w.Destroy(in.Entity)
			notifier.drop(in.Entity)
		default:
			errs = multierr.Append(errs, fmt.Errorf("instruction %d: unknown op %d", i, uint32(in.Op)))
		}
	}
	notifier.flush()
	w.log.Debug("command buffer flushed", zap.Int("instructions", n), zap.Bool("errors", errs != nil))
	return errs
}
