package ecs

// sparseSet is a dense/sparse entity set keyed by local slot id. dense keeps
// insertion order until a removal swaps the last element into the hole.
type sparseSet struct {
	dense  []Entity
	sparse []uint32
}

func (s *sparseSet) index(id uint32) (uint32, bool) {
	if int(id) >= len(s.sparse) {
		return 0, false
	}
	idx := s.sparse[id]
	if int(idx) >= len(s.dense) || s.dense[idx].ID() != id {
		return 0, false
	}
	return idx, true
}

func (s *sparseSet) has(e Entity) bool {
	idx, ok := s.index(e.ID())
	return ok && s.dense[idx] == e
}

// add inserts e. A stale handle occupying the same slot is replaced in place.
func (s *sparseSet) add(e Entity) {
	if idx, ok := s.index(e.ID()); ok {
		s.dense[idx] = e
		return
	}
	s.sparse = growTo(s.sparse, int(e.ID())+1)
	s.sparse[e.ID()] = uint32(len(s.dense))
	s.dense = append(s.dense, e)
}

func (s *sparseSet) remove(e Entity) {
	idx, ok := s.index(e.ID())
	if !ok || s.dense[idx] != e {
		return
	}
	last := len(s.dense) - 1
	moved := s.dense[last]
	s.dense[idx] = moved
	s.sparse[moved.ID()] = idx
	s.dense = s.dense[:last]
}

func (s *sparseSet) len() int { return len(s.dense) }

func (s *sparseSet) clear() { s.dense = s.dense[:0] }
