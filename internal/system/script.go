package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/pmndrs/koota-sub000/internal/core/event"
	coresys "github.com/pmndrs/koota-sub000/internal/core/system"
)

// Updater is the part of the Lua engine the script system drives.
type Updater interface {
	Update(dt time.Duration) error
}

// ScriptSystem runs the Lua update(dt) hook once per tick.
// A failing script is reported on the bus and does not stop the loop.
type ScriptSystem struct {
	name   string
	engine Updater
	bus    *event.Bus
	log    *zap.Logger
}

func NewScriptSystem(name string, engine Updater, bus *event.Bus, log *zap.Logger) *ScriptSystem {
	return &ScriptSystem{name: name, engine: engine, bus: bus, log: log}
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ScriptSystem) Update(dt time.Duration) {
	if err := s.engine.Update(dt); err != nil {
		s.log.Error("script update failed", zap.String("script", s.name), zap.Error(err))
		event.Emit(s.bus, event.ScriptError{Script: s.name, Err: err})
	}
}
