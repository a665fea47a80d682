package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
)

func TestSessions_CloseOnlyOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	sessions := store.Sessions()

	start := time.Now()
	session, err := sessions.Create(ctx, uuid.New(), start)
	require.NoError(t, err)

	closed, err := sessions.Close(ctx, session.ID, models.SessionCompleted, start.Add(time.Minute), 60)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = sessions.Close(ctx, session.ID, models.SessionPaused, start.Add(time.Hour), 3600)
	require.NoError(t, err)
	assert.False(t, closed)

	got, err := sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, 60, *got.DurationSeconds)
}

func TestSessions_ListNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	user := uuid.New()

	first, err := store.Sessions().Create(ctx, user, time.Now())
	require.NoError(t, err)
	second, err := store.Sessions().Create(ctx, user, time.Now())
	require.NoError(t, err)
	_, err = store.Sessions().Create(ctx, uuid.New(), time.Now())
	require.NoError(t, err)

	list, err := store.Sessions().ListByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestSessions_ReturnsCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	session, err := store.Sessions().Create(ctx, uuid.New(), time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Sessions().UpdateSummary(ctx, session.ID, models.Summary{Summary: "s", MainGoals: []string{"a"}}))

	got, err := store.Sessions().Get(ctx, session.ID)
	require.NoError(t, err)
	got.MainGoals[0] = "changed"

	again, err := store.Sessions().Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.MainGoals[0])
	assert.NotNil(t, again.TopicsDiscussed)
}

func TestMessages_RequireSession(t *testing.T) {
	store := NewStore()
	_, err := store.Messages().Create(context.Background(), uuid.New(), models.SenderUser, "hi")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPrompts_OneActive(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	prompts := store.Prompts()

	_, err := prompts.GetActive(ctx)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	a := &models.SystemPrompt{Name: "a", PromptText: "A"}
	b := &models.SystemPrompt{Name: "b", PromptText: "B"}
	require.NoError(t, prompts.Create(ctx, a))
	require.NoError(t, prompts.Create(ctx, b))

	require.NoError(t, prompts.Activate(ctx, a.ID))
	require.NoError(t, prompts.Activate(ctx, b.ID))

	active, err := prompts.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", active.PromptText)
}

func TestUsers_EmailIsUnique(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Users().Create(ctx, &models.User{Email: "a@example.com"}))
	err := store.Users().Create(ctx, &models.User{Email: "A@example.com"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	user, err := store.Users().GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)

	require.NoError(t, store.Users().SetRole(ctx, user.ID, models.RoleAdmin))
	got, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())
}
