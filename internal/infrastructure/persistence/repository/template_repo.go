package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/persistence/sqldb"
)

// TemplateRepository implements port.ServiceTemplateLookup on the service_templates table
type TemplateRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new service template repository
func NewTemplateRepository(db *sqldb.DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a service template
func (r *TemplateRepository) Create(ctx context.Context, tmpl *entity.ServiceTemplate) error {
	query := r.db.Dialect().Rebind(`
		INSERT INTO service_templates (name, service_type, is_active)
		VALUES (?, ?, ?)
		RETURNING id
	`)

	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		tmpl.Name,
		string(tmpl.ServiceType),
		tmpl.IsActive,
	).Scan(&tmpl.ID)
	if err != nil {
		r.logger.Error("Failed to create service template", zap.String("name", tmpl.Name), zap.Error(err))
		return fmt.Errorf("failed to create service template: %w", err)
	}
	return nil
}

// GetServiceTemplate implements port.ServiceTemplateLookup; nil, nil when missing
func (r *TemplateRepository) GetServiceTemplate(ctx context.Context, id int64) (*entity.ServiceTemplate, error) {
	query := r.db.Dialect().Rebind(`
		SELECT id, name, service_type, is_active
		FROM service_templates
		WHERE id = ?
	`)

	var tmpl entity.ServiceTemplate
	var serviceType string
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id).Scan(
		&tmpl.ID,
		&tmpl.Name,
		&serviceType,
		&tmpl.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get service template", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get service template: %w", err)
	}

	tmpl.ServiceType = entity.ServiceType(serviceType)
	return &tmpl, nil
}

// Verify interface compliance
var _ port.ServiceTemplateLookup = (*TemplateRepository)(nil)
