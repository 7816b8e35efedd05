package repository

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"dataset-platform/core/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user and fills in its generated id.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (username, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query,
		u.Username, u.PasswordHash, u.Role, u.Active,
	).Scan(&u.ID); err != nil {
		return eris.Wrap(err, "repository: insert user")
	}
	return nil
}

// Get retrieves a user by id, returning nil when absent.
func (r *UserRepository) Get(ctx context.Context, id int64) (*models.User, error) {
	return r.getWhere(ctx, `WHERE id = $1`, id)
}

// GetByUsername retrieves a user by username, returning nil when absent.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getWhere(ctx, `WHERE username = $1`, username)
}

// LowestActiveLabeler returns the active labeler with the lowest id, the
// deterministic assignee rule of the task arbiter.
func (r *UserRepository) LowestActiveLabeler(ctx context.Context) (*models.User, error) {
	return r.getWhere(ctx,
		`WHERE role = 'labeler' AND is_active = TRUE ORDER BY id ASC LIMIT 1`)
}

func (r *UserRepository) getWhere(ctx context.Context, where string, args ...interface{}) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, role, is_active
		FROM users ` + where

	var u models.User
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Active,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "repository: get user")
	}
	return &u, nil
}
