package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/realtime"
	"github.com/coachline/coachline/internal/repository/memory"
	"github.com/coachline/coachline/internal/summary"
)

// localStore serves Store straight from the in-memory repositories
type localStore struct {
	mem    *memory.Store
	user   uuid.UUID
	worker *summary.Worker

	mu        sync.Mutex
	ends      int
	createErr error
}

func newLocalStore() *localStore {
	mem := memory.NewStore()
	return &localStore{
		mem:    mem,
		user:   uuid.New(),
		worker: summary.NewWorker(mem.Sessions(), mem.Messages(), nil, nil),
	}
}

func (s *localStore) CreateSession(ctx context.Context, startedAt time.Time) (*models.Session, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.mem.Sessions().Create(ctx, s.user, startedAt)
}

func (s *localStore) EndSession(ctx context.Context, id uuid.UUID, req EndRequest) (*models.Session, error) {
	s.mu.Lock()
	s.ends++
	s.mu.Unlock()
	if _, err := s.mem.Sessions().Close(ctx, id, req.Status, req.EndedAt, req.DurationSeconds); err != nil {
		return nil, err
	}
	return s.mem.Sessions().Get(ctx, id)
}

func (s *localStore) AppendMessage(ctx context.Context, id uuid.UUID, sender models.Sender, content string) (*models.Message, error) {
	return s.mem.Messages().Create(ctx, id, sender, content)
}

func (s *localStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.mem.Sessions().Get(ctx, id)
}

func (s *localStore) ListMessages(ctx context.Context, id uuid.UUID) ([]models.Message, error) {
	return s.mem.Messages().ListBySession(ctx, id)
}

func (s *localStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return s.mem.Sessions().ListByUser(ctx, s.user)
}

func (s *localStore) Summarize(ctx context.Context, id uuid.UUID) (*models.Summary, error) {
	return s.worker.Summarize(ctx, id)
}

func (s *localStore) UpdateRating(ctx context.Context, id uuid.UUID, rating int, feedback []string) (*models.Session, error) {
	return s.mem.Sessions().UpdateRating(ctx, id, rating, feedback)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestManager_PauseAfterNinetySeconds(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}
	store := newLocalStore()
	m := NewManager(store, WithClock(clock.Now))

	session, err := m.StartSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, session.Status)

	clock.Advance(90 * time.Second)
	ended, err := m.EndSession(context.Background(), models.SessionPaused)
	require.NoError(t, err)

	assert.Equal(t, models.SessionPaused, ended.Status)
	require.NotNil(t, ended.EndedAt)
	assert.True(t, ended.EndedAt.Equal(start.Add(90*time.Second)))
	require.NotNil(t, ended.DurationSeconds)
	assert.Equal(t, 90, *ended.DurationSeconds)
}

func TestManager_EndSessionIsIdempotent(t *testing.T) {
	store := newLocalStore()
	m := NewManager(store)

	_, err := m.StartSession(context.Background())
	require.NoError(t, err)

	first, err := m.EndSession(context.Background(), models.SessionCompleted)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := m.EndSession(context.Background(), models.SessionCompleted)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, 1, store.ends)

	_, ok := m.CurrentSessionID()
	assert.False(t, ok)
}

func TestManager_EndSessionRejectsActive(t *testing.T) {
	m := NewManager(newLocalStore())
	_, err := m.EndSession(context.Background(), models.SessionActive)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestManager_SaveMessageWithoutSession(t *testing.T) {
	m := NewManager(newLocalStore())
	assert.ErrorIs(t, m.SaveMessage(context.Background(), models.SenderUser, "hello"), ErrNoActiveSession)
}

func TestManager_StartFailureWarnsAndContinues(t *testing.T) {
	store := newLocalStore()
	store.createErr = errors.New("connection refused")

	var alerts []realtime.Alert
	m := NewManager(store, WithAlerter(realtime.AlerterFunc(func(a realtime.Alert) { alerts = append(alerts, a) })))

	session, err := m.StartSession(context.Background())
	assert.Nil(t, session)
	assert.Error(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, realtime.AlertStorage, alerts[0].Kind)
	assert.Equal(t, "Failed to start session. Your conversation will not be saved.", alerts[0].Description)

	_, ok := m.CurrentSessionID()
	assert.False(t, ok)
}

// Messages saved concurrently right after start all land on the new session
func TestManager_MessagesObserveNewSession(t *testing.T) {
	store := newLocalStore()
	m := NewManager(store)

	session, err := m.StartSession(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.SaveMessage(context.Background(), models.SenderUser, "hi"))
		}()
	}
	wg.Wait()

	msgs, err := m.GetSessionMessages(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 20)
}

func TestManager_GenerateSummaryRefetches(t *testing.T) {
	store := newLocalStore()
	m := NewManager(store)

	session, err := m.StartSession(context.Background())
	require.NoError(t, err)
	_, err = m.EndSession(context.Background(), models.SessionCompleted)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	refreshed, err := m.GenerateSummary(ctx, session.ID)
	require.NoError(t, err, "summary survives a cancelled caller")
	require.NotNil(t, refreshed.Summary)
	assert.Equal(t, summary.DefaultEmptySummary, *refreshed.Summary)
}

func TestManager_Rating(t *testing.T) {
	store := newLocalStore()
	m := NewManager(store)
	session, err := m.StartSession(context.Background())
	require.NoError(t, err)

	_, err = m.UpdateSessionRating(context.Background(), session.ID, 6, nil)
	assert.ErrorIs(t, err, ErrInvalidRating)

	rated, err := m.UpdateSessionRating(context.Background(), session.ID, 4, []string{"helpful"})
	require.NoError(t, err)
	assert.Equal(t, 4, *rated.Rating)
	assert.Equal(t, []string{"helpful"}, []string(rated.Feedback))
}

// The full path: a conversation's finalized messages land on the session
func TestManager_AsConversationSink(t *testing.T) {
	store := newLocalStore()
	m := NewManager(store)
	session, err := m.StartSession(context.Background())
	require.NoError(t, err)

	var sink realtime.MessageSink = m
	require.NoError(t, sink.SaveMessage(context.Background(), models.SenderUser, "I like my job"))
	require.NoError(t, sink.SaveMessage(context.Background(), models.SenderAI, "Glad to hear it."))

	msgs, err := m.GetSessionMessages(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderUser, msgs[0].Sender)
	assert.Equal(t, "I like my job", msgs[0].Content)
	assert.Equal(t, models.SenderAI, msgs[1].Sender)
}
