package workflow

import (
	"context"
	"errors"
	"testing"
)

type guardKey struct{}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateSubmitted, false},
		{StateRTRWReview, false},
		{StateRTRWApproved, false},
		{StateRTRWRejected, true},
		{StateVillageProcessing, false},
		{StateVillageHeadReview, false},
		{StateCompleted, true},
		{StateRejected, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"valid state", StateSubmitted, true},
		{"valid state", StateCompleted, true},
		{"upper case", State("COMPLETED"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("village_head_review")
	if err != nil {
		t.Fatalf("ParseState() failed: %v", err)
	}
	if s != StateVillageHeadReview {
		t.Errorf("ParseState() = %v, want %v", s, StateVillageHeadReview)
	}

	_, err = ParseState("archived")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ParseState() error = %v, want %v", err, ErrInvalidTransition)
	}
}

func TestClosedBy(t *testing.T) {
	tests := []struct {
		target State
		stage  Stage
	}{
		{StateRTRWApproved, StageRTRWReview},
		{StateRTRWRejected, StageRTRWReview},
		{StateVillageProcessing, StageVillageProcessing},
		{StateVillageHeadReview, StageVillageProcessing},
		{StateCompleted, StageVillageHeadReview},
		{StateRejected, StageVillageHeadReview},
		{StateSubmitted, StageNone},
		{StateRTRWReview, StageNone},
	}

	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			if got := ClosedBy(tt.target); got != tt.stage {
				t.Errorf("ClosedBy() = %v, want %v", got, tt.stage)
			}
		})
	}

	if StageVillageHeadReview.Owner() != RoleVillageHead {
		t.Errorf("Owner() = %v, want %v", StageVillageHeadReview.Owner(), RoleVillageHead)
	}
}

func TestBuilder_ConfigurePanicsOnTerminalState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on terminal state")
		}
	}()

	builder.Configure(StateCompleted)
}

func TestBuilder_BuildPanicsOnInvalidInitialState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Build() should panic on invalid initial state")
		}
	}()

	builder.Build(State("INVALID"))
}

func TestStateConfiguration_PermitPanicsOnInvalidRole(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Permit() should panic on invalid role")
		}
	}()

	builder.Configure(StateSubmitted).Permit(Role("lurah"), StateRTRWApproved)
}

func TestStateMachine_Fire(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateSubmitted).
		Permit(RoleRTRWHead, StateRTRWApproved)

	machine := builder.Build(StateSubmitted)

	if !machine.CanFire(RoleRTRWHead, StateRTRWApproved) {
		t.Error("CanFire() should return true for permitted transition")
	}

	if err := machine.Fire(context.Background(), RoleRTRWHead, StateRTRWApproved); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}

	if machine.State() != StateRTRWApproved {
		t.Errorf("State after Fire() = %v, want %v", machine.State(), StateRTRWApproved)
	}
}

func TestStateMachine_Fire_WrongRole(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateSubmitted).
		Permit(RoleRTRWHead, StateRTRWApproved)

	machine := builder.Build(StateSubmitted)

	for _, role := range []Role{RoleCitizen, RoleVillageStaff, RoleVillageHead} {
		err := machine.Fire(context.Background(), role, StateRTRWApproved)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Fire(%s) error = %v, want %v", role, err, ErrInvalidTransition)
		}
	}

	if machine.State() != StateSubmitted {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateSubmitted, machine.State())
	}
}

func TestStateMachine_PermitIf(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateVillageHeadReview).
		PermitIf(RoleVillageHead, StateCompleted, func(ctx context.Context) bool {
			allowed, _ := ctx.Value(guardKey{}).(bool)
			return allowed
		})

	denied := builder.Build(StateVillageHeadReview)
	err := denied.Fire(context.Background(), RoleVillageHead, StateCompleted)
	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want %v", err, ErrGuardFailed)
	}
	if denied.State() != StateVillageHeadReview {
		t.Errorf("State should remain %v, got %v", StateVillageHeadReview, denied.State())
	}

	allowed := builder.Build(StateVillageHeadReview)
	ctx := context.WithValue(context.Background(), guardKey{}, true)
	if err := allowed.Fire(ctx, RoleVillageHead, StateCompleted); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}
}

func TestStateMachine_TerminalStateRejectsEverything(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateVillageHeadReview).
		Permit(RoleVillageHead, StateCompleted)

	machine := builder.Build(StateRejected)

	for _, target := range AllStates() {
		err := machine.Fire(context.Background(), RoleVillageHead, target)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Fire(%s) from rejected error = %v, want %v", target, err, ErrInvalidTransition)
		}
	}

	if len(machine.PermittedTargets(RoleVillageHead)) != 0 {
		t.Error("terminal state should have no permitted targets")
	}
}

func TestStateMachine_PermittedTargets(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateRTRWApproved).
		Permit(RoleVillageStaff, StateVillageProcessing).
		Permit(RoleVillageStaff, StateVillageHeadReview)

	machine := builder.Build(StateRTRWApproved)

	targets := machine.PermittedTargets(RoleVillageStaff)
	if len(targets) != 2 {
		t.Fatalf("PermittedTargets() returned %d targets, want 2", len(targets))
	}
	if len(machine.PermittedTargets(RoleVillageHead)) != 0 {
		t.Error("village head should have no targets from rt_rw_approved")
	}
}

func TestStateMachine_Immutability(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateSubmitted).
		Permit(RoleRTRWHead, StateRTRWApproved)

	machine1 := builder.Build(StateSubmitted)
	machine2 := builder.Build(StateSubmitted)

	builder.Configure(StateSubmitted).Permit(RoleRTRWHead, StateRTRWRejected)

	if machine1.CanFire(RoleRTRWHead, StateRTRWRejected) {
		t.Error("machine built earlier should not see later configuration")
	}

	if err := machine1.Fire(context.Background(), RoleRTRWHead, StateRTRWApproved); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}
	if machine2.State() != StateSubmitted {
		t.Errorf("machine2 state = %v, want %v (machines should be independent)", machine2.State(), StateSubmitted)
	}
}

func TestError_KindAndRetry(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		sentinel  error
		retryable bool
	}{
		{"not found", NotFoundError("get", "application %d", 7), KindNotFound, ErrNotFound, false},
		{"invalid", InvalidTransitionError("transition", "nope"), KindInvalidTransition, ErrInvalidTransition, false},
		{"numbering", NumberingConflictError("number", errors.New("dup")), KindNumberingConflict, ErrNumberingConflict, true},
		{"storage", StorageFailureError("update", ErrConcurrentUpdate), KindStorageFailure, ErrStorageFailure, true},
		{"bare guard", ErrGuardFailed, KindInvalidTransition, ErrInvalidTransition, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			var wfErr *Error
			if errors.As(tt.err, &wfErr) && !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
		})
	}

	if !errors.Is(StorageFailureError("update", ErrConcurrentUpdate), ErrConcurrentUpdate) {
		t.Error("wrapped cause should stay reachable")
	}
}

func TestStatusLabel(t *testing.T) {
	if StatusLabel(StateVillageHeadReview) != "Review Kades" {
		t.Errorf("StatusLabel() = %v", StatusLabel(StateVillageHeadReview))
	}
	if StatusProgress(StateCompleted) != 100 || StatusProgress(StateRejected) != 0 {
		t.Error("unexpected progress for terminal states")
	}
}
