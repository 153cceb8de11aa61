package workflow

import "context"

// StateMachine tracks the current state of one application and validates
// role-gated transitions against the configured table
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if role may move the machine into target
	CanFire(role Role, target State) bool

	// Fire moves the machine into target if role is permitted and guards pass
	Fire(ctx context.Context, role Role, target State) error

	// PermittedTargets returns the states role may move the machine into
	PermittedTargets(role Role) []State
}
