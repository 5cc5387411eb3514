package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/pmndrs/koota-sub000/internal/core/ecs"
	coresys "github.com/pmndrs/koota-sub000/internal/core/system"
)

// FlushSystem replays the world's deferred command buffer at tick end.
// Phase 4 (Cleanup).
type FlushSystem struct {
	world *ecs.World
	log   *zap.Logger
}

func NewFlushSystem(world *ecs.World, log *zap.Logger) *FlushSystem {
	return &FlushSystem{world: world, log: log}
}

func (s *FlushSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *FlushSystem) Update(_ time.Duration) {
	buf := s.world.Commands()
	if buf.Len() == 0 {
		return
	}
	if err := buf.Flush(s.world); err != nil {
		s.log.Warn("command buffer replay failed", zap.Error(err))
	}
}
