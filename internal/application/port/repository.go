package port

import (
	"context"

	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	"github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

// ApplicationFilter narrows List results. Empty fields are ignored;
// Statuses and ReviewedBy are OR-ed together, the rest are AND-ed.
type ApplicationFilter struct {
	CitizenID  string
	Statuses   []workflow.State
	ReviewedBy string // RT/RW reviewer id
	AreaRT     *string
	AreaRW     *string
	Limit      int
	Offset     int
}

// ApplicationRepository defines persistence operations for Application
type ApplicationRepository interface {
	Create(ctx context.Context, app *entity.Application) error

	// GetByID returns nil, nil when the application does not exist
	GetByID(ctx context.Context, id int64) (*entity.Application, error)

	// GetByIDForUpdate is GetByID that also locks the row for the surrounding transaction
	GetByIDForUpdate(ctx context.Context, id int64) (*entity.Application, error)

	// UpdateWorkflow persists status, audit triples, document fields and updated_at.
	// The write only applies while the stored status still equals expected;
	// otherwise it returns workflow.ErrConcurrentUpdate.
	UpdateWorkflow(ctx context.Context, app *entity.Application, expected workflow.State) error

	List(ctx context.Context, filter ApplicationFilter) ([]*entity.Application, error)
}

// SequenceRepository hands out document sequence numbers
type SequenceRepository interface {
	// Next atomically increments and returns the counter for (code, year), starting at 1
	Next(ctx context.Context, code string, year int) (int64, error)

}

// HistoryRepository defines persistence operations for ApplicationHistory
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.ApplicationHistory) error
	GetByApplicationID(ctx context.Context, applicationID int64) ([]*entity.ApplicationHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
