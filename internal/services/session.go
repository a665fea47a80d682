package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/logging"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
	"github.com/coachline/coachline/internal/summary"
)

// EndInput closes a session. EndedAt and DurationSeconds default to now and
// the time elapsed since StartedAt.
type EndInput struct {
	Status          models.SessionStatus
	EndedAt         *time.Time
	DurationSeconds *int
}

// SessionService applies ownership and lifecycle rules on top of the repositories
type SessionService struct {
	sessions repository.SessionRepository
	messages repository.MessageRepository
	worker   *summary.Worker
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewSessionService creates a session service
func NewSessionService(sessions repository.SessionRepository, messages repository.MessageRepository, worker *summary.Worker, log logrus.FieldLogger) *SessionService {
	return &SessionService{
		sessions: sessions,
		messages: messages,
		worker:   worker,
		log:      logging.OrDiscard(log),
		now:      time.Now,
	}
}

// Create starts an active session for userID
func (s *SessionService) Create(ctx context.Context, userID uuid.UUID, startedAt *time.Time) (*models.Session, error) {
	start := s.now()
	if startedAt != nil && !startedAt.IsZero() {
		start = *startedAt
	}

	session, err := s.sessions.Create(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.log.WithFields(logrus.Fields{"session_id": session.ID, "user_id": userID}).Info("session created")
	return session, nil
}

// Get returns a session owned by userID
func (s *SessionService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Session, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.UserID != userID {
		return nil, ErrNotFound
	}
	return session, nil
}

// List returns userID's sessions newest first
func (s *SessionService) List(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// End closes an active session. Ending a session that is already closed
// returns it unchanged.
func (s *SessionService) End(ctx context.Context, userID, id uuid.UUID, in EndInput) (*models.Session, error) {
	if !in.Status.Terminal() {
		return nil, fmt.Errorf("%w: status must be completed or paused", ErrInvalidInput)
	}

	session, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	endedAt := s.now()
	if in.EndedAt != nil && !in.EndedAt.IsZero() {
		endedAt = *in.EndedAt
	}
	if endedAt.Before(session.StartedAt) {
		return nil, fmt.Errorf("%w: ended_at is before started_at", ErrInvalidInput)
	}
	duration := models.DurationSeconds(session.StartedAt, endedAt)
	if in.DurationSeconds != nil {
		if *in.DurationSeconds < 0 {
			return nil, fmt.Errorf("%w: duration_seconds must not be negative", ErrInvalidInput)
		}
		duration = *in.DurationSeconds
	}

	closed, err := s.sessions.Close(ctx, id, in.Status, endedAt, duration)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	if !closed {
		s.log.WithField("session_id", id).Info("session already closed, ignoring end request")
	} else {
		s.log.WithFields(logrus.Fields{"session_id": id, "status": in.Status, "duration": duration}).Info("session ended")
	}

	return s.Get(ctx, userID, id)
}

// AppendMessage stores a finalized message on one of userID's sessions
func (s *SessionService) AppendMessage(ctx context.Context, userID, id uuid.UUID, sender models.Sender, content string) (*models.Message, error) {
	if !sender.Valid() {
		return nil, fmt.Errorf("%w: sender must be user or ai", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(ctx, id, sender, content)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

// Messages returns a session transcript oldest first
func (s *SessionService) Messages(ctx context.Context, userID, id uuid.UUID) ([]models.Message, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListBySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return msgs, nil
}

// Rate records a 1..5 rating and feedback tags
func (s *SessionService) Rate(ctx context.Context, userID, id uuid.UUID, rating int, feedback []string) (*models.Session, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if feedback == nil {
		feedback = []string{}
	}

	session, err := s.sessions.UpdateRating(ctx, id, rating, feedback)
	if err != nil {
		return nil, fmt.Errorf("failed to update session rating: %w", err)
	}
	return session, nil
}

// Summarize runs the summarization worker for one of userID's sessions
func (s *SessionService) Summarize(ctx context.Context, userID, id uuid.UUID) (*models.Summary, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.worker.Summarize(ctx, id)
}
