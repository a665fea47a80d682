// Package memory provides in-process implementations of the repository
// interfaces. They back the server's "memory" storage mode and the tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
)

// Store holds every table behind one lock
type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*models.User
	sessions map[uuid.UUID]*models.Session
	messages map[uuid.UUID][]models.Message
	prompts  map[uuid.UUID]*models.SystemPrompt
	now      func() time.Time
	seq      int64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*models.User),
		sessions: make(map[uuid.UUID]*models.Session),
		messages: make(map[uuid.UUID][]models.Message),
		prompts:  make(map[uuid.UUID]*models.SystemPrompt),
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// tick returns a strictly increasing timestamp so rows keep insertion order
func (s *Store) tick() time.Time {
	s.seq++
	return s.now().Add(time.Duration(s.seq) * time.Microsecond)
}

func (s *Store) Sessions() repository.SessionRepository { return sessionRepo{s} }
func (s *Store) Messages() repository.MessageRepository { return messageRepo{s} }
func (s *Store) Prompts() repository.PromptRepository   { return promptRepo{s} }
func (s *Store) Users() repository.UserRepository       { return userRepo{s} }

func copySession(in *models.Session) *models.Session {
	out := *in
	out.MainGoals = append([]string(nil), in.MainGoals...)
	out.TopicsDiscussed = append([]string(nil), in.TopicsDiscussed...)
	out.Feedback = append([]string(nil), in.Feedback...)
	if in.MainGoals != nil && out.MainGoals == nil {
		out.MainGoals = []string{}
	}
	if in.TopicsDiscussed != nil && out.TopicsDiscussed == nil {
		out.TopicsDiscussed = []string{}
	}
	if in.Feedback != nil && out.Feedback == nil {
		out.Feedback = []string{}
	}
	return &out
}

type sessionRepo struct{ s *Store }

func (r sessionRepo) Create(_ context.Context, userID uuid.UUID, startedAt time.Time) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session := &models.Session{
		ID:        uuid.New(),
		UserID:    userID,
		StartedAt: startedAt,
		Status:    models.SessionActive,
		CreatedAt: r.s.tick(),
	}
	r.s.sessions[session.ID] = session
	return copySession(session), nil
}

func (r sessionRepo) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySession(session), nil
}

func (r sessionRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sessions := []*models.Session{}
	for _, session := range r.s.sessions {
		if session.UserID == userID {
			sessions = append(sessions, copySession(session))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (r sessionRepo) Close(_ context.Context, id uuid.UUID, status models.SessionStatus, endedAt time.Time, durationSeconds int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[id]
	if !ok || session.Status != models.SessionActive {
		return false, nil
	}
	session.Status = status
	session.EndedAt = &endedAt
	session.DurationSeconds = &durationSeconds
	return true, nil
}

func (r sessionRepo) UpdateSummary(_ context.Context, id uuid.UUID, summary models.Summary) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	text := summary.Summary
	session.Summary = &text
	session.MainGoals = append([]string{}, summary.MainGoals...)
	session.TopicsDiscussed = append([]string{}, summary.TopicsDiscussed...)
	return nil
}

func (r sessionRepo) UpdateRating(_ context.Context, id uuid.UUID, rating int, feedback []string) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	session.Rating = &rating
	session.Feedback = append([]string{}, feedback...)
	return copySession(session), nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(_ context.Context, sessionID uuid.UUID, sender models.Sender, content string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.sessions[sessionID]; !ok {
		return nil, repository.ErrNotFound
	}
	message := models.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Sender:    sender,
		Content:   content,
		CreatedAt: r.s.tick(),
	}
	r.s.messages[sessionID] = append(r.s.messages[sessionID], message)
	return &message, nil
}

func (r messageRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return append([]models.Message{}, r.s.messages[sessionID]...), nil
}

type promptRepo struct{ s *Store }

func (r promptRepo) GetActive(_ context.Context) (*models.SystemPrompt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, prompt := range r.s.prompts {
		if prompt.IsActive {
			out := *prompt
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r promptRepo) List(_ context.Context) ([]*models.SystemPrompt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	prompts := []*models.SystemPrompt{}
	for _, prompt := range r.s.prompts {
		out := *prompt
		prompts = append(prompts, &out)
	}
	sort.Slice(prompts, func(i, j int) bool {
		return prompts[i].CreatedAt.After(prompts[j].CreatedAt)
	})
	return prompts, nil
}

func (r promptRepo) Create(_ context.Context, prompt *models.SystemPrompt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if prompt.ID == uuid.Nil {
		prompt.ID = uuid.New()
	}
	now := r.s.tick()
	prompt.CreatedAt = now
	prompt.UpdatedAt = now
	prompt.IsActive = false
	stored := *prompt
	r.s.prompts[prompt.ID] = &stored
	return nil
}

func (r promptRepo) Activate(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	target, ok := r.s.prompts[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, prompt := range r.s.prompts {
		prompt.IsActive = false
	}
	target.IsActive = true
	target.UpdatedAt = r.s.tick()
	return nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrConflict
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	now := r.s.tick()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	r.s.users[user.ID] = &stored
	return nil
}

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, user := range r.s.users {
		if strings.EqualFold(user.Email, email) {
			out := *user
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) SetRole(_ context.Context, id uuid.UUID, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Role = role
	return nil
}

func (r userRepo) SetPassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = r.s.tick()
	return nil
}
