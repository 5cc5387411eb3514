package ecs

import (
	"errors"
	"fmt"
)

var (
	ErrWorldCapacity = errors.New("ecs: world id budget exhausted")
	ErrValidation    = errors.New("ecs: value rejected by validator")
	ErrNestedSchema  = errors.New("ecs: schema fields must be flat scalars")
	ErrValueType     = errors.New("ecs: value has the wrong type for trait")
	ErrUsage         = errors.New("ecs: invalid operation")
)

// UsageError is raised (as a panic) by strict worlds when a caller operates on
// a dead entity or on a trait the entity does not hold as expected.
type UsageError struct {
	Op     string
	Entity Entity
	Trait  *Trait
	Reason string
}

func (e *UsageError) Error() string {
	if e.Trait == nil {
		return fmt.Sprintf("ecs: %s on entity %s: %s", e.Op, e.Entity, e.Reason)
	}
	return fmt.Sprintf("ecs: %s %s on entity %s: %s", e.Op, e.Trait.Name(), e.Entity, e.Reason)
}

func (e *UsageError) Unwrap() error { return ErrUsage }

// usage panics in strict mode. Permissive worlds ignore the misuse and the
// caller returns without doing anything.
func (w *World) usage(op string, e Entity, t *Trait, reason string) {
	if w.strict {
		panic(&UsageError{Op: op, Entity: e, Trait: t, Reason: reason})
	}
}
