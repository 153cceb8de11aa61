package entity

import (
	"time"

	"github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

// StageAudit records the decision of one review authority. All fields are nil
// until the stage closes and never change afterwards.
type StageAudit struct {
	ActorID *string    `json:"actor_id"`
	Notes   *string    `json:"notes"`
	At      *time.Time `json:"at"`
}

// IsStamped reports whether the stage decision has been recorded
func (a StageAudit) IsStamped() bool {
	return a.ActorID != nil && a.At != nil
}

// Application is one citizen's request against one service template
type Application struct {
	ID                   int64                  `json:"id"`
	CitizenID            string                 `json:"citizen_id"`
	ServiceTemplateID    int64                  `json:"service_template_id"`
	Status               workflow.State         `json:"status"`
	FormData             map[string]interface{} `json:"form_data"`
	SubmittedDocuments   []int64                `json:"submitted_documents"`
	RTRWReview           StageAudit             `json:"rt_rw_review"`
	VillageProcessing    StageAudit             `json:"village_processing"`
	VillageHeadReview    StageAudit             `json:"village_head_review"`
	DocumentNumber       *string                `json:"document_number"`
	GeneratedDocumentURL *string                `json:"generated_document_url"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// Audit returns a pointer to the audit triple for a stage, or nil for StageNone
func (a *Application) Audit(stage workflow.Stage) *StageAudit {
	switch stage {
	case workflow.StageRTRWReview:
		return &a.RTRWReview
	case workflow.StageVillageProcessing:
		return &a.VillageProcessing
	case workflow.StageVillageHeadReview:
		return &a.VillageHeadReview
	default:
		return nil
	}
}

// Clone returns a deep copy so callers can mutate without touching the original
func (a *Application) Clone() *Application {
	c := *a
	if a.FormData != nil {
		c.FormData = make(map[string]interface{}, len(a.FormData))
		for k, v := range a.FormData {
			c.FormData[k] = v
		}
	}
	c.SubmittedDocuments = append([]int64(nil), a.SubmittedDocuments...)
	return &c
}

// ApplicationHistory is the audit trail of one committed transition
type ApplicationHistory struct {
	ID             int64          `json:"id"`
	ApplicationID  int64          `json:"application_id"`
	ActorID        string         `json:"actor_id"`
	PreviousStatus workflow.State `json:"previous_status"`
	NewStatus      workflow.State `json:"new_status"`
	Notes          *string        `json:"notes,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
