package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
)

// MessageRepository implements repository.MessageRepository using PostgreSQL
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sqlx.DB) repository.MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends a finalized message to a session
func (r *MessageRepository) Create(ctx context.Context, sessionID uuid.UUID, sender models.Sender, content string) (*models.Message, error) {
	var message models.Message
	query := `
		INSERT INTO messages (id, session_id, sender, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, session_id, sender, content, created_at`

	if err := r.db.GetContext(ctx, &message, query, uuid.New(), sessionID, sender, content); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return &message, nil
}

// ListBySession retrieves messages for a session in transcript order
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	messages := []models.Message{}
	query := `
		SELECT id, session_id, sender, content, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &messages, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}
