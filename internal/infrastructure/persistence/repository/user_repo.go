package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	"github.com/garyjia/kelurahan-portal/internal/domain/workflow"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/persistence/sqldb"
)

// UserRepository implements port.UserDirectory on the users table
type UserRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqldb.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a user. Accounts are owned by the identity provider; this
// keeps a local copy of the fields the workflow needs.
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := r.db.Dialect().Rebind(`
		INSERT INTO users (id, name, role, rt, rw, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		user.ID,
		user.Name,
		string(user.Role),
		nullString(user.RT),
		nullString(user.RW),
		user.IsActive,
	)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser implements port.UserDirectory; nil, nil when missing
func (r *UserRepository) GetUser(ctx context.Context, id string) (*entity.User, error) {
	query := r.db.Dialect().Rebind(`
		SELECT id, name, role, rt, rw, is_active
		FROM users
		WHERE id = ?
	`)

	var user entity.User
	var role string
	var rt, rw sql.NullString
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&role,
		&rt,
		&rw,
		&user.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Role = workflow.Role(role)
	user.RT = stringPtr(rt)
	user.RW = stringPtr(rw)
	return &user, nil
}

// Verify interface compliance
var _ port.UserDirectory = (*UserRepository)(nil)
