package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/coachline/coachline/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness rule
	ErrConflict = errors.New("conflict")
)

// SessionRepository defines session storage operations
type SessionRepository interface {
	Create(ctx context.Context, userID uuid.UUID, startedAt time.Time) (*models.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error)
	// Close moves a still-active session to status. It reports false when the
	// session was already closed, leaving the row untouched.
	Close(ctx context.Context, id uuid.UUID, status models.SessionStatus, endedAt time.Time, durationSeconds int) (bool, error)
	UpdateSummary(ctx context.Context, id uuid.UUID, summary models.Summary) error
	UpdateRating(ctx context.Context, id uuid.UUID, rating int, feedback []string) (*models.Session, error)
}

// MessageRepository defines message storage operations. Messages are append-only.
type MessageRepository interface {
	Create(ctx context.Context, sessionID uuid.UUID, sender models.Sender, content string) (*models.Message, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
}

// PromptRepository defines system prompt storage operations
type PromptRepository interface {
	GetActive(ctx context.Context) (*models.SystemPrompt, error)
	List(ctx context.Context) ([]*models.SystemPrompt, error)
	Create(ctx context.Context, prompt *models.SystemPrompt) error
	Activate(ctx context.Context, id uuid.UUID) error
}

// UserRepository defines user storage operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetRole(ctx context.Context, id uuid.UUID, role string) error
	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}
