package ecs

import "math/bits"

// maxBitflag bounds each mask word to 31 usable flags.
const maxBitflag = 1 << 31

// fabric is the per-world array of entity mask words. masks[gen][id] holds the
// flags of every trait registered in generation gen for local slot id.
type fabric struct {
	masks   [][]uint32
	bitflag uint32
}

func newFabric() *fabric {
	return &fabric{masks: make([][]uint32, 1), bitflag: 1}
}

// next hands out the (generation, bitflag) pair for a newly registered trait,
// appending a new word once the current one is full.
func (f *fabric) next() (int, uint32) {
	gen, flag := len(f.masks)-1, f.bitflag
	f.bitflag <<= 1
	if f.bitflag >= maxBitflag {
		f.bitflag = 1
		f.masks = append(f.masks, nil)
	}
	return gen, flag
}

func (f *fabric) generations() int { return len(f.masks) }

func (f *fabric) get(gen int, id uint32) uint32 {
	m := f.masks[gen]
	if int(id) < len(m) {
		return m[id]
	}
	return 0
}

func (f *fabric) has(gen int, id uint32, flag uint32) bool {
	return f.get(gen, id)&flag != 0
}

func (f *fabric) set(gen int, id uint32, flag uint32) {
	m := growTo(f.masks[gen], int(id)+1)
	m[id] |= flag
	f.masks[gen] = m
}

func (f *fabric) unset(gen int, id uint32, flag uint32) {
	m := f.masks[gen]
	if int(id) < len(m) {
		m[id] &^= flag
	}
}

// empty reports whether slot id carries no flags in any generation.
func (f *fabric) empty(id uint32) bool {
	for gen := range f.masks {
		if f.get(gen, id) != 0 {
			return false
		}
	}
	return true
}

// forEach calls fn for every flag set on slot id, lowest generation first.
func (f *fabric) forEach(id uint32, fn func(gen int, flag uint32)) {
	for gen := range f.masks {
		word := f.get(gen, id)
		for word != 0 {
			flag := uint32(1) << bits.TrailingZeros32(word)
			fn(gen, flag)
			word &^= flag
		}
	}
}

// snapshot deep-copies the fabric for tracking modifiers.
func (f *fabric) snapshot() [][]uint32 {
	out := make([][]uint32, len(f.masks))
	for gen, m := range f.masks {
		out[gen] = append([]uint32(nil), m...)
	}
	return out
}

func (f *fabric) reset() {
	f.masks = make([][]uint32, 1)
	f.bitflag = 1
}

// growTo extends s with zero values so that len(s) >= n.
func growTo[T any](s []T, n int) []T {
	if len(s) >= n {
		return s
	}
	if cap(s) >= n {
		old := len(s)
		s = s[:n]
		clear(s[old:])
		return s
	}
	grown := make([]T, n, max(n, 2*cap(s)))
	copy(grown, s)
	return grown
}

// maskAt reads masks[gen][id] from a shard table that may be shorter than the
// fabric.
func maskAt(masks [][]uint32, gen int, id uint32) uint32 {
	if gen >= len(masks) {
		return 0
	}
	m := masks[gen]
	if int(id) < len(m) {
		return m[id]
	}
	return 0
}

func setMaskAt(masks [][]uint32, gen int, id uint32, flag uint32) [][]uint32 {
	masks = growTo(masks, gen+1)
	m := growTo(masks[gen], int(id)+1)
	m[id] |= flag
	masks[gen] = m
	return masks
}

func unsetMaskAt(masks [][]uint32, gen int, id uint32, flag uint32) {
	if gen >= len(masks) {
		return
	}
	m := masks[gen]
	if int(id) < len(m) {
		m[id] &^= flag
	}
}
