package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
)

const uniqueViolation = "23505"

// UserRepository handles user data access
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, display_name, password_hash, role, created_at, updated_at)
		VALUES (:id, :email, :display_name, :password_hash, :role, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `WHERE email = $1`, email)
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	var user models.User
	query := `
		SELECT id, email, display_name, password_hash, role, created_at, updated_at
		FROM users ` + where

	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// SetRole changes a user's role
func (r *UserRepository) SetRole(ctx context.Context, id uuid.UUID, role string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetPassword replaces a user's password hash
func (r *UserRepository) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
