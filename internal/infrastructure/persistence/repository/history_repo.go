package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	"github.com/garyjia/kelurahan-portal/internal/domain/workflow"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/persistence/sqldb"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqldb.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.ApplicationHistory) error {
	query := r.db.Dialect().Rebind(`
		INSERT INTO application_history (
			application_id, actor_id, previous_status, new_status, notes, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		history.ApplicationID,
		history.ActorID,
		string(history.PreviousStatus),
		string(history.NewStatus),
		nullString(history.Notes),
		history.Timestamp.UTC(),
	).Scan(&history.ID)
	if err != nil {
		r.logger.Error("Failed to create history record",
			zap.Int64("application_id", history.ApplicationID),
			zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	return nil
}

// GetByApplicationID retrieves all history records for an application, oldest first
func (r *HistoryRepository) GetByApplicationID(ctx context.Context, applicationID int64) ([]*entity.ApplicationHistory, error) {
	query := r.db.Dialect().Rebind(`
		SELECT id, application_id, actor_id, previous_status, new_status, notes, timestamp
		FROM application_history
		WHERE application_id = ?
		ORDER BY timestamp ASC, id ASC
	`)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, applicationID)
	if err != nil {
		r.logger.Error("Failed to get history by application ID", zap.Int64("application_id", applicationID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	records := make([]*entity.ApplicationHistory, 0)
	for rows.Next() {
		var record entity.ApplicationHistory
		var previous, next string
		var notes sql.NullString
		err := rows.Scan(
			&record.ID,
			&record.ApplicationID,
			&record.ActorID,
			&previous,
			&next,
			&notes,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		record.PreviousStatus = workflow.State(previous)
		record.NewStatus = workflow.State(next)
		record.Notes = stringPtr(notes)
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
