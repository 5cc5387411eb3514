package ecs

import "fmt"

// Entity packs a world id (4 bits), a generation (8 bits) and a local slot id
// (20 bits) into one 32-bit handle. Generation increments when a slot is
// recycled so stale handles fail liveness checks without a side lookup.
type Entity uint32

const (
	worldIDBits    = 4
	generationBits = 8
	entityIDBits   = 20

	entityIDMask   = 1<<entityIDBits - 1
	generationMask = 1<<generationBits - 1
	worldIDMask    = 1<<worldIDBits - 1

	generationShift = entityIDBits
	worldIDShift    = entityIDBits + generationBits

	// MaxWorlds is the number of worlds that may be alive at once.
	MaxWorlds = 1 << worldIDBits
	// maxEntities is the number of local slots a world may hand out. The top
	// slot is reserved so Wildcard never collides with a real handle.
	maxEntities = entityIDMask
)

// Wildcard is the "any target" sentinel used by relations.
const Wildcard Entity = 0xFFFFFFFF

func PackEntity(worldID, generation uint8, id uint32) Entity {
	return Entity(uint32(worldID&worldIDMask)<<worldIDShift |
		uint32(generation)<<generationShift |
		id&entityIDMask)
}

func (e Entity) ID() uint32        { return uint32(e) & entityIDMask }
func (e Entity) Generation() uint8 { return uint8(uint32(e) >> generationShift & generationMask) }
func (e Entity) WorldID() uint8    { return uint8(uint32(e) >> worldIDShift & worldIDMask) }

func (e Entity) String() string {
	if e == Wildcard {
		return "*"
	}
	return fmt.Sprintf("%d:%d@%d", e.ID(), e.Generation(), e.WorldID())
}

// nextGeneration returns the handle for the same slot with its generation
// bumped, wrapping at 256.
func (e Entity) nextGeneration() Entity {
	return PackEntity(e.WorldID(), e.Generation()+1, e.ID())
}

// entityIndex is a dense/sparse pair: dense[:alive] holds live handles,
// dense[alive:] holds released ones waiting for reuse.
type entityIndex struct {
	dense   []Entity
	sparse  []uint32
	alive   int
	nextID  uint32
	worldID uint8
}

func newEntityIndex(worldID uint8, capacity int) *entityIndex {
	return &entityIndex{
		dense:   make([]Entity, 0, capacity),
		sparse:  make([]uint32, 0, capacity),
		worldID: worldID,
	}
}

// allocate reuses the first released slot (bumping its generation) or appends
// a new one.
func (x *entityIndex) allocate() Entity {
	if x.alive < len(x.dense) {
		e := x.dense[x.alive].nextGeneration()
		x.dense[x.alive] = e
		x.sparse[e.ID()] = uint32(x.alive)
		x.alive++
		return e
	}
	if x.nextID >= maxEntities {
		panic(fmt.Sprintf("ecs: world %d exhausted its %d entity slots", x.worldID, maxEntities))
	}
	id := x.nextID
	x.nextID++
	e := PackEntity(x.worldID, 0, id)
	x.dense = append(x.dense, e)
	x.sparse = append(x.sparse, uint32(x.alive))
	x.alive++
	return e
}

// release swap-removes e to the alive/dead boundary. Stale handles are ignored.
func (x *entityIndex) release(e Entity) {
	if !x.isAlive(e) {
		return
	}
	idx := x.sparse[e.ID()]
	lastIdx := uint32(x.alive - 1)
	last := x.dense[lastIdx]

	x.sparse[last.ID()] = idx
	x.dense[idx] = last
	x.sparse[e.ID()] = lastIdx
	x.dense[lastIdx] = e
	x.alive--
}

func (x *entityIndex) isAlive(e Entity) bool {
	id := e.ID()
	if int(id) >= len(x.sparse) {
		return false
	}
	idx := x.sparse[id]
	return int(idx) < x.alive && x.dense[idx] == e
}

// aliveHandles is a read-only view; order follows swap-remove, not creation.
func (x *entityIndex) aliveHandles() []Entity {
	return x.dense[:x.alive]
}

func (x *entityIndex) reset() {
	x.dense = x.dense[:0]
	x.sparse = x.sparse[:0]
	x.alive = 0
	x.nextID = 0
}
