package event

import "github.com/pmndrs/koota-sub000/internal/core/ecs"

// Mutation events bridged from world hooks by Watch.

type TraitAdded struct {
	World  uint8
	Entity ecs.Entity
	Trait  *ecs.Trait
}

type TraitRemoved struct {
	World  uint8
	Entity ecs.Entity
	Trait  *ecs.Trait
}

type TraitChanged struct {
	World  uint8
	Entity ecs.Entity
	Trait  *ecs.Trait
}

// ScriptError is emitted when a Lua system fails during a tick.
type ScriptError struct {
	Script string
	Err    error
}
