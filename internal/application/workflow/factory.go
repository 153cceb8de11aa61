package workflow

import (
	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

var applicationTable = newApplicationTable()

// newApplicationTable configures the authoritative current-status x role table
func newApplicationTable() domainwf.StateMachineBuilder {
	builder := domainwf.NewBuilder()

	// Both statuses mean "awaiting RT/RW action"
	for _, awaiting := range []domainwf.State{domainwf.StateSubmitted, domainwf.StateRTRWReview} {
		builder.Configure(awaiting).
			Permit(domainwf.RoleRTRWHead, domainwf.StateRTRWApproved).
			Permit(domainwf.RoleRTRWHead, domainwf.StateRTRWRejected)
	}

	builder.Configure(domainwf.StateRTRWApproved).
		Permit(domainwf.RoleVillageStaff, domainwf.StateVillageProcessing).
		Permit(domainwf.RoleVillageStaff, domainwf.StateVillageHeadReview)

	builder.Configure(domainwf.StateVillageProcessing).
		Permit(domainwf.RoleVillageStaff, domainwf.StateVillageHeadReview)

	builder.Configure(domainwf.StateVillageHeadReview).
		Permit(domainwf.RoleVillageHead, domainwf.StateCompleted).
		Permit(domainwf.RoleVillageHead, domainwf.StateRejected)

	// rt_rw_rejected, completed and rejected are terminal - no outgoing transitions

	return builder
}

// BuildApplicationStateMachine creates a state machine positioned at initialState
func BuildApplicationStateMachine(initialState domainwf.State) domainwf.StateMachine {
	return applicationTable.Build(initialState)
}
