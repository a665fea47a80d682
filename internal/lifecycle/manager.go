// Package lifecycle owns the durable record of the conversation in progress:
// it creates the session, persists each finalized message, closes the session
// and triggers its summary.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/logging"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/realtime"
)

var (
	// ErrNoActiveSession is returned when a message arrives with no session tracked
	ErrNoActiveSession = errors.New("no active session to save message to")
	// ErrInvalidStatus is returned when a session is ended with a non-terminal status
	ErrInvalidStatus = errors.New("status must be completed or paused")
	// ErrInvalidRating is returned for ratings outside 1..5
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// EndRequest closes a session
type EndRequest struct {
	Status          models.SessionStatus `json:"status"`
	EndedAt         time.Time            `json:"ended_at"`
	DurationSeconds int                  `json:"duration_seconds"`
}

// Store is the remote storage the manager works against
type Store interface {
	CreateSession(ctx context.Context, startedAt time.Time) (*models.Session, error)
	EndSession(ctx context.Context, id uuid.UUID, req EndRequest) (*models.Session, error)
	AppendMessage(ctx context.Context, id uuid.UUID, sender models.Sender, content string) (*models.Message, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListMessages(ctx context.Context, id uuid.UUID) ([]models.Message, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	Summarize(ctx context.Context, id uuid.UUID) (*models.Summary, error)
	UpdateRating(ctx context.Context, id uuid.UUID, rating int, feedback []string) (*models.Session, error)
}

type current struct {
	id        uuid.UUID
	startedAt time.Time
}

// Manager tracks the session of the live conversation. The current session
// is read at call time, never captured, so late messages land on the right row.
type Manager struct {
	store   Store
	alerter realtime.Alerter
	now     func() time.Time
	log     logrus.FieldLogger

	mu  sync.Mutex
	cur *current
}

// Option customises a Manager
type Option func(*Manager)

// WithAlerter sets where user-visible warnings go
func WithAlerter(a realtime.Alerter) Option { return func(m *Manager) { m.alerter = a } }

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option { return func(m *Manager) { m.log = logging.OrDiscard(l) } }

// NewManager creates a manager with no session tracked
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		now:   time.Now,
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartSession creates an active session and tracks it. On failure the user
// is warned that the conversation will not be saved and nil is returned; the
// conversation itself can go on.
func (m *Manager) StartSession(ctx context.Context) (*models.Session, error) {
	startedAt := m.now()

	session, err := m.store.CreateSession(ctx, startedAt)
	if err != nil {
		m.log.WithError(err).Error("failed to create session")
		if m.alerter != nil {
			m.alerter.Alert(realtime.Alert{
				Kind:        realtime.AlertStorage,
				Title:       "Session Error",
				Description: "Failed to start session. Your conversation will not be saved.",
			})
		}
		return nil, err
	}

	m.mu.Lock()
	m.cur = &current{id: session.ID, startedAt: startedAt}
	m.mu.Unlock()

	m.log.WithField("session_id", session.ID).Info("session started")
	return session, nil
}

// CurrentSessionID returns the tracked session, if any
func (m *Manager) CurrentSessionID() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return uuid.Nil, false
	}
	return m.cur.id, true
}

// SaveMessage appends a finalized message to the tracked session
func (m *Manager) SaveMessage(ctx context.Context, sender models.Sender, content string) error {
	id, ok := m.CurrentSessionID()
	if !ok {
		m.log.Error(ErrNoActiveSession.Error())
		return ErrNoActiveSession
	}

	if _, err := m.store.AppendMessage(ctx, id, sender, content); err != nil {
		m.log.WithError(err).WithField("session_id", id).Error("failed to save message")
		return err
	}
	return nil
}

// EndSession closes the tracked session with status. Without a tracked
// session it does nothing and returns nil, nil; calling it twice therefore
// closes the session once.
func (m *Manager) EndSession(ctx context.Context, status models.SessionStatus) (*models.Session, error) {
	if !status.Terminal() {
		return nil, ErrInvalidStatus
	}

	m.mu.Lock()
	cur := m.cur
	m.cur = nil
	m.mu.Unlock()

	if cur == nil {
		return nil, nil
	}

	endedAt := m.now()
	req := EndRequest{
		Status:          status,
		EndedAt:         endedAt,
		DurationSeconds: models.DurationSeconds(cur.startedAt, endedAt),
	}

	session, err := m.store.EndSession(ctx, cur.id, req)
	if err != nil {
		m.log.WithError(err).WithField("session_id", cur.id).Error("failed to end session")
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"session_id": cur.id,
		"status":     status,
		"duration":   req.DurationSeconds,
	}).Info("session ended")
	return session, nil
}

// GenerateSummary runs the summarization worker and returns the refreshed
// session. It is not cancelled with ctx once issued.
func (m *Manager) GenerateSummary(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	ctx = context.WithoutCancel(ctx)

	if _, err := m.store.Summarize(ctx, id); err != nil {
		m.log.WithError(err).WithField("session_id", id).Error("failed to generate summary")
		return nil, err
	}

	session, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return session, nil
}

// GetSession fetches one session
func (m *Manager) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return m.store.GetSession(ctx, id)
}

// GetSessionMessages returns a session's transcript oldest first
func (m *Manager) GetSessionMessages(ctx context.Context, id uuid.UUID) ([]models.Message, error) {
	return m.store.ListMessages(ctx, id)
}

// GetUserSessions returns the caller's sessions newest first
func (m *Manager) GetUserSessions(ctx context.Context) ([]*models.Session, error) {
	return m.store.ListSessions(ctx)
}

// UpdateSessionRating records the user's rating and feedback tags
func (m *Manager) UpdateSessionRating(ctx context.Context, id uuid.UUID, rating int, feedback []string) (*models.Session, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	return m.store.UpdateRating(ctx, id, rating, feedback)
}
