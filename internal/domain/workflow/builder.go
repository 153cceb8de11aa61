package workflow

import (
	"context"
	"fmt"
)

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows role to move from the configured state to the target state
	Permit(role Role, toState State) StateConfiguration

	// PermitIf allows role to move to the target state if the guard condition passes
	PermitIf(role Role, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	fromState   State
	transitions map[Role][]transition
}

type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

type stateMachine struct {
	currentState   State
	configurations map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if state.IsTerminal() {
		panic(fmt.Sprintf("terminal state cannot have transitions: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Role][]transition),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates a new state machine instance with the given initial state
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	// Machines must not observe later Configure calls on the builder
	configsCopy := make(map[State]*stateConfig, len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Role][]transition, len(config.transitions))
		for role, transitions := range config.transitions {
			transitionsCopy[role] = append([]transition{}, transitions...)
		}
		configsCopy[state] = &stateConfig{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configsCopy,
	}
}

// Permit allows role to move to the target state
func (c *stateConfig) Permit(role Role, toState State) StateConfiguration {
	return c.PermitIf(role, toState, nil)
}

// PermitIf allows role to move to the target state if the guard condition passes
func (c *stateConfig) PermitIf(role Role, toState State, guard GuardFunc) StateConfiguration {
	if !role.IsValid() {
		panic(fmt.Sprintf("invalid role: %s", role))
	}
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[role] = append(c.transitions[role], transition{
		toState: toState,
		guard:   guard,
	})

	return c
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.currentState
}

// CanFire returns true if the target is configured for role in the current state.
// Guards are not evaluated here since they need a context.
func (m *stateMachine) CanFire(role Role, target State) bool {
	return len(m.candidates(role, target)) > 0
}

// Fire attempts to move into target, evaluating guards in registration order
func (m *stateMachine) Fire(ctx context.Context, role Role, target State) error {
	if m.currentState.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, m.currentState)
	}

	candidates := m.candidates(role, target)
	if len(candidates) == 0 {
		return fmt.Errorf("%w: role %s cannot move %s to %s", ErrInvalidTransition, role, m.currentState, target)
	}

	for _, t := range candidates {
		if t.guard == nil || t.guard(ctx) {
			m.currentState = t.toState
			return nil
		}
	}

	return fmt.Errorf("%w: role %s moving %s to %s", ErrGuardFailed, role, m.currentState, target)
}

// PermittedTargets returns all states role may move the machine into
func (m *stateMachine) PermittedTargets(role Role) []State {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []State{}
	}

	targets := make([]State, 0, len(config.transitions[role]))
	seen := make(map[State]bool)
	for _, t := range config.transitions[role] {
		if !seen[t.toState] {
			seen[t.toState] = true
			targets = append(targets, t.toState)
		}
	}

	return targets
}

func (m *stateMachine) candidates(role Role, target State) []transition {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return nil
	}

	var matched []transition
	for _, t := range config.transitions[role] {
		if t.toState == target {
			matched = append(matched, t)
		}
	}
	return matched
}
