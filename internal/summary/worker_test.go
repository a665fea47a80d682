package summary

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachline/coachline/internal/config"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository/memory"
)

type stubCompleter struct {
	reply  string
	err    error
	calls  int
	prompt string
}

func (s *stubCompleter) Complete(_ context.Context, _, user string) (string, error) {
	s.calls++
	s.prompt = user
	return s.reply, s.err
}

func seedSession(t *testing.T, store *memory.Store, lines ...string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	session, err := store.Sessions().Create(ctx, uuid.New(), time.Now())
	require.NoError(t, err)
	for i, line := range lines {
		sender := models.SenderUser
		if i%2 == 1 {
			sender = models.SenderAI
		}
		_, err := store.Messages().Create(ctx, session.ID, sender, line)
		require.NoError(t, err)
	}
	return session.ID
}

func TestSummarize_EmptyTranscript(t *testing.T) {
	store := memory.NewStore()
	id := seedSession(t, store)
	completer := &stubCompleter{}

	result, err := NewWorker(store.Sessions(), store.Messages(), completer, nil).Summarize(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, DefaultEmptySummary, result.Summary)
	assert.Empty(t, result.MainGoals)
	assert.Zero(t, completer.calls)

	session, err := store.Sessions().Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, session.Summary)
	assert.Equal(t, DefaultEmptySummary, *session.Summary)
}

func TestSummarize_EmptyTranscriptWithoutCompleter(t *testing.T) {
	store := memory.NewStore()
	id := seedSession(t, store)

	result, err := NewWorker(store.Sessions(), store.Messages(), nil, nil).Summarize(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, DefaultEmptySummary, result.Summary)
}

func TestSummarize_FencedReply(t *testing.T) {
	store := memory.NewStore()
	id := seedSession(t, store, "I want to grow into a lead role", "What would that look like for you?")
	completer := &stubCompleter{reply: "```json\n{\"summary\":\"S\",\"main_goals\":[\"g\"],\"topics_discussed\":[\"t\"]}\n```"}

	result, err := NewWorker(store.Sessions(), store.Messages(), completer, nil).Summarize(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, models.Summary{Summary: "S", MainGoals: []string{"g"}, TopicsDiscussed: []string{"t"}}, *result)
	assert.Contains(t, completer.prompt, "User: I want to grow into a lead role\n\nAI: What would that look like for you?")

	session, err := store.Sessions().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "S", *session.Summary)
	assert.Equal(t, []string{"g"}, []string(session.MainGoals))
	assert.Equal(t, []string{"t"}, []string(session.TopicsDiscussed))
}

func TestSummarize_UnparseableReplyFallsBack(t *testing.T) {
	store := memory.NewStore()
	id := seedSession(t, store, "hello")
	completer := &stubCompleter{reply: "Sure! Here is the summary you asked for."}

	result, err := NewWorker(store.Sessions(), store.Messages(), completer, nil).Summarize(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, FallbackSummary, result.Summary)
	assert.Empty(t, result.TopicsDiscussed)
}

func TestSummarize_Failures(t *testing.T) {
	tests := []struct {
		name      string
		completer Completer
		status    int
		message   string
	}{
		{
			name:      "rate limited",
			completer: &stubCompleter{err: &ProviderError{Status: http.StatusTooManyRequests, Err: errors.New("slow down")}},
			status:    http.StatusTooManyRequests,
			message:   "Rate limits exceeded, please try again later.",
		},
		{
			name:      "credits exhausted",
			completer: &stubCompleter{err: &ProviderError{Status: http.StatusPaymentRequired, Err: errors.New("pay up")}},
			status:    http.StatusPaymentRequired,
			message:   "AI service credits exhausted.",
		},
		{
			name:      "gateway failure",
			completer: &stubCompleter{err: &ProviderError{Status: http.StatusBadGateway, Err: errors.New("bad gateway")}},
			status:    http.StatusInternalServerError,
			message:   "AI analysis failed",
		},
		{
			name:      "transport failure",
			completer: &stubCompleter{err: errors.New("dial tcp: refused")},
			status:    http.StatusInternalServerError,
			message:   "AI analysis failed",
		},
		{
			name:      "empty reply",
			completer: &stubCompleter{reply: "   "},
			status:    http.StatusInternalServerError,
			message:   "AI analysis produced no content",
		},
		{
			name:      "not configured",
			completer: nil,
			status:    http.StatusInternalServerError,
			message:   "AI service not configured",
		},
		{
			name:      "typed nil completer",
			completer: NewOpenAICompleter(config.SummaryConfig{}),
			status:    http.StatusInternalServerError,
			message:   "AI service not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			id := seedSession(t, store, "hello")

			_, err := NewWorker(store.Sessions(), store.Messages(), tt.completer, nil).Summarize(context.Background(), id)

			var sErr *Error
			require.ErrorAs(t, err, &sErr)
			assert.Equal(t, tt.status, sErr.Status)
			assert.Equal(t, tt.message, sErr.Message)

			session, err := store.Sessions().Get(context.Background(), id)
			require.NoError(t, err)
			assert.Nil(t, session.Summary, "failed summarization must not write")
		})
	}
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    models.Summary
		wantErr bool
	}{
		{
			name:  "plain JSON",
			reply: `{"summary":"ok","main_goals":["a"],"topics_discussed":[]}`,
			want:  models.Summary{Summary: "ok", MainGoals: []string{"a"}, TopicsDiscussed: []string{}},
		},
		{
			name:  "bare fence with missing lists",
			reply: "```\n{\"summary\":\"ok\"}\n```",
			want:  models.Summary{Summary: "ok", MainGoals: []string{}, TopicsDiscussed: []string{}},
		},
		{name: "missing summary", reply: `{"main_goals":["a"]}`, wantErr: true},
		{name: "wrong shape", reply: `["a","b"]`, wantErr: true},
		{name: "wrong field type", reply: `{"summary":"ok","main_goals":"a"}`, wantErr: true},
		{name: "prose", reply: "not json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnalysis(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenAICompleter_MapsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gw-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(config.SummaryConfig{APIKey: "gw-key", BaseURL: srv.URL, Model: "gemini-2.5-flash"})
	require.NotNil(t, c)

	_, err := c.Complete(context.Background(), "sys", "user")
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusTooManyRequests, provErr.Status)
}

func TestOpenAICompleter_ReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"summary\":\"x\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(config.SummaryConfig{APIKey: "gw-key", BaseURL: srv.URL, Model: "m"})
	reply, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"x"}`, reply)
}
