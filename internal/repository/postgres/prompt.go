package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
)

// PromptRepository implements repository.PromptRepository using PostgreSQL
type PromptRepository struct {
	db *sqlx.DB
}

// NewPromptRepository creates a new PostgreSQL prompt repository
func NewPromptRepository(db *sqlx.DB) repository.PromptRepository {
	return &PromptRepository{db: db}
}

// GetActive returns the single active prompt, or repository.ErrNotFound
func (r *PromptRepository) GetActive(ctx context.Context) (*models.SystemPrompt, error) {
	var prompt models.SystemPrompt
	query := `
		SELECT id, name, prompt_text, is_active, created_by, created_at, updated_at
		FROM system_prompts
		WHERE is_active
		LIMIT 1`

	if err := r.db.GetContext(ctx, &prompt, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active prompt: %w", err)
	}
	return &prompt, nil
}

// List returns all prompts, newest first
func (r *PromptRepository) List(ctx context.Context) ([]*models.SystemPrompt, error) {
	prompts := []*models.SystemPrompt{}
	query := `
		SELECT id, name, prompt_text, is_active, created_by, created_at, updated_at
		FROM system_prompts
		ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &prompts, query); err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	return prompts, nil
}

// Create stores a new, inactive prompt
func (r *PromptRepository) Create(ctx context.Context, prompt *models.SystemPrompt) error {
	if prompt.ID == uuid.Nil {
		prompt.ID = uuid.New()
	}
	now := time.Now()
	prompt.CreatedAt = now
	prompt.UpdatedAt = now
	prompt.IsActive = false

	query := `
		INSERT INTO system_prompts (id, name, prompt_text, is_active, created_by, created_at, updated_at)
		VALUES (:id, :name, :prompt_text, :is_active, :created_by, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, prompt); err != nil {
		return fmt.Errorf("failed to create prompt: %w", err)
	}
	return nil
}

// Activate makes id the only active prompt
func (r *PromptRepository) Activate(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE system_prompts SET is_active = FALSE, updated_at = NOW() WHERE is_active`); err != nil {
		return fmt.Errorf("failed to deactivate prompts: %w", err)
	}

	result, err := tx.ExecContext(ctx, `UPDATE system_prompts SET is_active = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to activate prompt: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return repository.ErrNotFound
	}

	return tx.Commit()
}
