package workflow

import (
	"context"

	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

// WorkflowEngine is the only writer of an application's status, audit
// triples and document fields
type WorkflowEngine interface {
	// UpdateApplicationStatus moves an application into target on behalf of actorID.
	// When target is completed the document number is assigned in the same transaction.
	UpdateApplicationStatus(ctx context.Context, applicationID int64, target domainwf.State, actorID string, notes *string) (*entity.Application, error)

	// GenerateApplicationDocument ensures a completed application carries its
	// document number and reference. Repeated calls return the same number.
	GenerateApplicationDocument(ctx context.Context, applicationID int64) (*entity.Application, error)

	// AvailableTransitions lists the targets actorID may request right now
	AvailableTransitions(ctx context.Context, applicationID int64, actorID string) ([]domainwf.State, error)
}
