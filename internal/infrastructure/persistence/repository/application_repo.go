package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	"github.com/garyjia/kelurahan-portal/internal/domain/workflow"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/kelurahan-portal/pkg/database"
)

const applicationColumns = `
	a.id, a.citizen_id, a.service_template_id, a.status, a.form_data, a.submitted_documents,
	a.rt_rw_reviewer_id, a.rt_rw_review_notes, a.rt_rw_reviewed_at,
	a.village_staff_id, a.village_processing_notes, a.village_processed_at,
	a.village_head_id, a.village_head_notes, a.village_head_reviewed_at,
	a.document_number, a.generated_document_url, a.created_at, a.updated_at`

// ApplicationRepository implements port.ApplicationRepository
type ApplicationRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *sqldb.DB, logger *zap.Logger) port.ApplicationRepository {
	return &ApplicationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new application
func (r *ApplicationRepository) Create(ctx context.Context, app *entity.Application) error {
	formData, err := encodeJSON(app.FormData, "{}")
	if err != nil {
		return err
	}
	documents, err := encodeJSON(app.SubmittedDocuments, "[]")
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.CreatedAt
	}
	if app.Status == "" {
		app.Status = workflow.StateSubmitted
	}

	query := r.db.Dialect().Rebind(`
		INSERT INTO applications (
			citizen_id, service_template_id, status, form_data, submitted_documents,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err = r.db.Executor(ctx).QueryRowContext(ctx, query,
		app.CitizenID,
		app.ServiceTemplateID,
		string(app.Status),
		formData,
		documents,
		app.CreatedAt.UTC(),
		app.UpdatedAt.UTC(),
	).Scan(&app.ID)
	if err != nil {
		r.logger.Error("Failed to create application",
			zap.String("citizen_id", app.CitizenID),
			zap.Int64("service_template_id", app.ServiceTemplateID),
			zap.Error(err))
		return fmt.Errorf("failed to create application: %w", err)
	}

	return nil
}

// GetByID retrieves an application by ID; nil, nil when missing
func (r *ApplicationRepository) GetByID(ctx context.Context, id int64) (*entity.Application, error) {
	return r.get(ctx, id, false)
}

// GetByIDForUpdate retrieves an application and locks its row for the surrounding transaction
func (r *ApplicationRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entity.Application, error) {
	return r.get(ctx, id, true)
}

func (r *ApplicationRepository) get(ctx context.Context, id int64, lock bool) (*entity.Application, error) {
	query := `SELECT` + applicationColumns + `
		FROM applications a
		WHERE a.id = ?`
	if lock {
		query += r.db.Dialect().ForUpdate()
	}

	row := r.db.Executor(ctx).QueryRowContext(ctx, r.db.Dialect().Rebind(query), id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get application", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	return app, nil
}

// UpdateWorkflow persists the workflow-owned fields. Audit triples and the
// document number are write-once: a stored value is kept even if the caller
// passes another.
func (r *ApplicationRepository) UpdateWorkflow(ctx context.Context, app *entity.Application, expected workflow.State) error {
	query := r.db.Dialect().Rebind(`
		UPDATE applications SET
			status = ?,
			rt_rw_reviewer_id = COALESCE(rt_rw_reviewer_id, ?),
			rt_rw_review_notes = CASE WHEN rt_rw_reviewed_at IS NULL THEN ? ELSE rt_rw_review_notes END,
			rt_rw_reviewed_at = COALESCE(rt_rw_reviewed_at, ?),
			village_staff_id = COALESCE(village_staff_id, ?),
			village_processing_notes = CASE WHEN village_processed_at IS NULL THEN ? ELSE village_processing_notes END,
			village_processed_at = COALESCE(village_processed_at, ?),
			village_head_id = COALESCE(village_head_id, ?),
			village_head_notes = CASE WHEN village_head_reviewed_at IS NULL THEN ? ELSE village_head_notes END,
			village_head_reviewed_at = COALESCE(village_head_reviewed_at, ?),
			document_number = COALESCE(document_number, ?),
			generated_document_url = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		string(app.Status),
		nullString(app.RTRWReview.ActorID),
		nullString(app.RTRWReview.Notes),
		nullTime(app.RTRWReview.At),
		nullString(app.VillageProcessing.ActorID),
		nullString(app.VillageProcessing.Notes),
		nullTime(app.VillageProcessing.At),
		nullString(app.VillageHeadReview.ActorID),
		nullString(app.VillageHeadReview.Notes),
		nullTime(app.VillageHeadReview.At),
		nullString(app.DocumentNumber),
		nullString(app.GeneratedDocumentURL),
		app.UpdatedAt.UTC(),
		app.ID,
		string(expected),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			r.logger.Warn("Document number already taken",
				zap.Int64("id", app.ID),
				zap.String("document_number", derefString(app.DocumentNumber)))
			return workflow.NumberingConflictError("update application workflow", err)
		}
		if database.IsBusy(err) {
			return workflow.StorageFailureError("update application workflow", err)
		}
		r.logger.Error("Failed to update application workflow", zap.Int64("id", app.ID), zap.Error(err))
		return fmt.Errorf("failed to update application workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		r.logger.Warn("Application changed concurrently",
			zap.Int64("id", app.ID),
			zap.String("expected_status", string(expected)))
		return workflow.ErrConcurrentUpdate
	}

	return nil
}

// List returns applications matching the filter, newest first
func (r *ApplicationRepository) List(ctx context.Context, filter port.ApplicationFilter) ([]*entity.Application, error) {
	var (
		conditions []string
		args       []interface{}
	)

	query := `SELECT` + applicationColumns + `
		FROM applications a`

	if filter.AreaRT != nil || filter.AreaRW != nil {
		query += `
		INNER JOIN users u ON u.id = a.citizen_id`
		if filter.AreaRT != nil {
			conditions = append(conditions, "u.rt = ?")
			args = append(args, *filter.AreaRT)
		}
		if filter.AreaRW != nil {
			conditions = append(conditions, "u.rw = ?")
			args = append(args, *filter.AreaRW)
		}
	}

	if filter.CitizenID != "" {
		conditions = append(conditions, "a.citizen_id = ?")
		args = append(args, filter.CitizenID)
	}

	var access []string
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		access = append(access, "a.status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ReviewedBy != "" {
		access = append(access, "a.rt_rw_reviewer_id = ?")
		args = append(args, filter.ReviewedBy)
	}
	if len(access) > 0 {
		conditions = append(conditions, "("+strings.Join(access, " OR ")+")")
	}

	if len(conditions) > 0 {
		query += `
		WHERE ` + strings.Join(conditions, " AND ")
	}
	query += `
		ORDER BY a.created_at DESC, a.id DESC`

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Dialect().Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to list applications", zap.Error(err))
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]*entity.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}

	return apps, rows.Err()
}

func scanApplication(row rowScanner) (*entity.Application, error) {
	var app entity.Application
	var status string
	var formData, documents []byte
	var rtrwID, rtrwNotes, staffID, staffNotes, headID, headNotes sql.NullString
	var rtrwAt, staffAt, headAt sql.NullTime
	var documentNumber, generatedDocumentURL sql.NullString

	err := row.Scan(
		&app.ID,
		&app.CitizenID,
		&app.ServiceTemplateID,
		&status,
		&formData,
		&documents,
		&rtrwID, &rtrwNotes, &rtrwAt,
		&staffID, &staffNotes, &staffAt,
		&headID, &headNotes, &headAt,
		&documentNumber,
		&generatedDocumentURL,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	app.Status = workflow.State(status)
	if err := decodeJSON(formData, &app.FormData); err != nil {
		return nil, err
	}
	if err := decodeJSON(documents, &app.SubmittedDocuments); err != nil {
		return nil, err
	}

	app.RTRWReview = entity.StageAudit{ActorID: stringPtr(rtrwID), Notes: stringPtr(rtrwNotes), At: timePtr(rtrwAt)}
	app.VillageProcessing = entity.StageAudit{ActorID: stringPtr(staffID), Notes: stringPtr(staffNotes), At: timePtr(staffAt)}
	app.VillageHeadReview = entity.StageAudit{ActorID: stringPtr(headID), Notes: stringPtr(headNotes), At: timePtr(headAt)}
	app.DocumentNumber = stringPtr(documentNumber)
	app.GeneratedDocumentURL = stringPtr(generatedDocumentURL)

	return &app, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Verify interface compliance
var _ port.ApplicationRepository = (*ApplicationRepository)(nil)
