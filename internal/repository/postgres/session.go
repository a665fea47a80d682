package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
)

const sessionColumns = `id, user_id, started_at, ended_at, duration_seconds, status,
	summary, main_goals, topics_discussed, rating, feedback, created_at`

// SessionRepository implements repository.SessionRepository using PostgreSQL
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB) repository.SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts an active session for userID
func (r *SessionRepository) Create(ctx context.Context, userID uuid.UUID, startedAt time.Time) (*models.Session, error) {
	var session models.Session
	query := `
		INSERT INTO sessions (id, user_id, started_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + sessionColumns

	err := r.db.GetContext(ctx, &session, query, uuid.New(), userID, startedAt, models.SessionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &session, nil
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// ListByUser retrieves a user's sessions, newest first
func (r *SessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	sessions := []*models.Session{}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Close ends an active session. The status guard makes a second close a no-op.
func (r *SessionRepository) Close(ctx context.Context, id uuid.UUID, status models.SessionStatus, endedAt time.Time, durationSeconds int) (bool, error) {
	query := `
		UPDATE sessions
		SET status = $2, ended_at = $3, duration_seconds = $4
		WHERE id = $1 AND status = 'active'`

	result, err := r.db.ExecContext(ctx, query, id, status, endedAt, durationSeconds)
	if err != nil {
		return false, fmt.Errorf("failed to close session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// UpdateSummary stores the summarization digest on the session
func (r *SessionRepository) UpdateSummary(ctx context.Context, id uuid.UUID, summary models.Summary) error {
	query := `
		UPDATE sessions
		SET summary = $2, main_goals = $3, topics_discussed = $4
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, summary.Summary,
		pq.StringArray(summary.MainGoals), pq.StringArray(summary.TopicsDiscussed))
	if err != nil {
		return fmt.Errorf("failed to update session summary: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateRating records the user's rating and feedback tags
func (r *SessionRepository) UpdateRating(ctx context.Context, id uuid.UUID, rating int, feedback []string) (*models.Session, error) {
	var session models.Session
	query := `
		UPDATE sessions SET rating = $2, feedback = $3
		WHERE id = $1
		RETURNING ` + sessionColumns

	if err := r.db.GetContext(ctx, &session, query, id, rating, pq.StringArray(feedback)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update session rating: %w", err)
	}
	return &session, nil
}
