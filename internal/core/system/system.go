package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: swap and dispatch last tick's events
	PhasePreUpdate               // 1: react to events
	PhaseUpdate                  // 2: simulation logic and scripts
	PhasePostUpdate              // 3: derived state
	PhaseCleanup                 // 4: flush deferred commands
)

var phaseNames = [...]string{"input", "pre-update", "update", "post-update", "cleanup"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// System is the interface every system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
