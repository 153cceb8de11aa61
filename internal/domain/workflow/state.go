package workflow

// State represents an application status in the approval lifecycle
type State string

const (
	StateSubmitted         State = "submitted"
	StateRTRWReview        State = "rt_rw_review"
	StateRTRWApproved      State = "rt_rw_approved"
	StateRTRWRejected      State = "rt_rw_rejected"
	StateVillageProcessing State = "village_processing"
	StateVillageHeadReview State = "village_head_review"
	StateCompleted         State = "completed"
	StateRejected          State = "rejected"
)

var validStates = map[State]bool{
	StateSubmitted:         true,
	StateRTRWReview:        true,
	StateRTRWApproved:      true,
	StateRTRWRejected:      true,
	StateVillageProcessing: true,
	StateVillageHeadReview: true,
	StateCompleted:         true,
	StateRejected:          true,
}

var terminalStates = map[State]bool{
	StateRTRWRejected: true,
	StateCompleted:    true,
	StateRejected:     true,
}

// AllStates returns every workflow state in lifecycle order
func AllStates() []State {
	return []State{
		StateSubmitted,
		StateRTRWReview,
		StateRTRWApproved,
		StateRTRWRejected,
		StateVillageProcessing,
		StateVillageHeadReview,
		StateCompleted,
		StateRejected,
	}
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

// ParseState converts a raw status string into a State
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", newError(KindInvalidTransition, "parse state", ErrInvalidState)
	}
	return s, nil
}
