package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/domain/workflow"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/kelurahan-portal/pkg/database"
)

// SequenceRepository implements port.SequenceRepository on the document_sequences table
type SequenceRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sqldb.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next increments and returns the counter for (code, year) in one statement.
// The counter row is locked until the surrounding transaction ends, so
// concurrent callers are serialized and a rollback returns the number.
func (r *SequenceRepository) Next(ctx context.Context, code string, year int) (int64, error) {
	query := r.db.Dialect().Rebind(`
		INSERT INTO document_sequences (code, year, last_value, updated_at)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (code, year) DO UPDATE SET
			last_value = document_sequences.last_value + 1,
			updated_at = CURRENT_TIMESTAMP
		RETURNING last_value
	`)

	var value int64
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, code, year).Scan(&value)
	if err != nil {
		r.logger.Error("Failed to advance document sequence",
			zap.String("code", code),
			zap.Int("year", year),
			zap.Error(err))
		if database.IsUniqueViolation(err) || database.IsBusy(err) {
			return 0, workflow.NumberingConflictError("next document sequence", err)
		}
		return 0, fmt.Errorf("failed to advance document sequence: %w", err)
	}

	r.logger.Debug("Document sequence advanced",
		zap.String("code", code),
		zap.Int("year", year),
		zap.Int64("value", value))
	return value, nil
}

// Verify interface compliance
var _ port.SequenceRepository = (*SequenceRepository)(nil)
