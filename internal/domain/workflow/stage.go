package workflow

// Stage is a review stage owned by a single authority. Each stage has exactly
// one audit triple on the application.
type Stage string

const (
	StageNone              Stage = ""
	StageRTRWReview        Stage = "rt_rw_review"
	StageVillageProcessing Stage = "village_processing"
	StageVillageHeadReview Stage = "village_head_review"
)

// ClosedBy returns the stage whose decision is recorded when an application
// moves into target. The recorded triple always belongs to the authority
// performing the action, never to the one acting next.
func ClosedBy(target State) Stage {
	switch target {
	case StateRTRWApproved, StateRTRWRejected:
		return StageRTRWReview
	case StateVillageProcessing, StateVillageHeadReview:
		return StageVillageProcessing
	case StateCompleted, StateRejected:
		return StageVillageHeadReview
	default:
		return StageNone
	}
}

// Owner returns the role that owns the stage
func (s Stage) Owner() Role {
	switch s {
	case StageRTRWReview:
		return RoleRTRWHead
	case StageVillageProcessing:
		return RoleVillageStaff
	case StageVillageHeadReview:
		return RoleVillageHead
	default:
		return ""
	}
}
