package ecs

import "sync"

// universe hands out world ids. Worlds are single-threaded, but tests and
// hosts may create them from several goroutines.
var universe struct {
	mu     sync.Mutex
	worlds [MaxWorlds]*World
}

func allocateWorldID(w *World) (uint8, error) {
	universe.mu.Lock()
	defer universe.mu.Unlock()
	for i, slot := range universe.worlds {
		if slot == nil {
			universe.worlds[i] = w
			return uint8(i), nil
		}
	}
	return 0, ErrWorldCapacity
}

func releaseWorldID(id uint8) {
	universe.mu.Lock()
	defer universe.mu.Unlock()
	universe.worlds[id] = nil
}

// LiveWorlds returns the number of worlds currently holding an id.
func LiveWorlds() int {
	universe.mu.Lock()
	defer universe.mu.Unlock()
	n := 0
	for _, w := range universe.worlds {
		if w != nil {
			n++
		}
	}
	return n
}
