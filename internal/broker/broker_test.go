package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachline/coachline/internal/config"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
	"github.com/coachline/coachline/internal/repository/memory"
)

type failingPrompts struct{ repository.PromptRepository }

func (failingPrompts) GetActive(context.Context) (*models.SystemPrompt, error) {
	return nil, errors.New("connection refused")
}

func testConfig(url string) config.RealtimeConfig {
	return config.RealtimeConfig{
		APIKey:             "sk-live",
		SessionsURL:        url,
		Model:              "gpt-4o-realtime-preview-2024-12-17",
		DefaultVoice:       "alloy",
		TranscriptionModel: "whisper-1",
		VADThreshold:       0.5,
		PrefixPaddingMs:    300,
		SilenceDurationMs:  800,
	}
}

func upstream(t *testing.T, calls *int32, status int, reply string, got *SessionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "Bearer sk-live", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMint_UsesActivePrompt(t *testing.T) {
	store := memory.NewStore()
	prompt := &models.SystemPrompt{Name: "custom", PromptText: "Be brief."}
	require.NoError(t, store.Prompts().Create(context.Background(), prompt))
	require.NoError(t, store.Prompts().Activate(context.Background(), prompt.ID))

	var calls int32
	var got SessionRequest
	srv := upstream(t, &calls, http.StatusOK, `{"id":"sess_1","client_secret":{"value":"ek_123","expires_at":1700000000},"voice":"verse"}`, &got)

	b := New(testConfig(srv.URL), store.Prompts(), nil)
	session, err := b.Mint(context.Background(), uuid.New(), "verse")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "ek_123", session.ClientSecret.Value)
	assert.JSONEq(t, `{"id":"sess_1","client_secret":{"value":"ek_123","expires_at":1700000000},"voice":"verse"}`, string(session.Raw))

	assert.Equal(t, "Be brief.", got.Instructions)
	assert.Equal(t, "verse", got.Voice)
	assert.Equal(t, "whisper-1", got.InputAudioTranscription.Model)
	assert.Equal(t, TurnDetection{Type: "server_vad", Threshold: 0.5, PrefixPaddingMs: 300, SilenceDurationMs: 800}, got.TurnDetection)
}

func TestMint_FallsBackToDefaultPrompt(t *testing.T) {
	tests := []struct {
		name    string
		prompts repository.PromptRepository
	}{
		{name: "no active prompt", prompts: memory.NewStore().Prompts()},
		{name: "prompt store failure", prompts: failingPrompts{}},
		{name: "no prompt store", prompts: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			var got SessionRequest
			srv := upstream(t, &calls, http.StatusOK, `{"client_secret":{"value":"ek"}}`, &got)

			b := New(testConfig(srv.URL), tt.prompts, nil)
			_, err := b.Mint(context.Background(), uuid.New(), "")
			require.NoError(t, err)
			assert.Equal(t, DefaultPrompt, got.Instructions)
			assert.Equal(t, "alloy", got.Voice)
		})
	}
}

func TestMint_MissingKey(t *testing.T) {
	var calls int32
	srv := upstream(t, &calls, http.StatusOK, `{}`, nil)

	cfg := testConfig(srv.URL)
	cfg.APIKey = ""
	_, err := New(cfg, nil, nil).Mint(context.Background(), uuid.New(), "alloy")

	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestMint_UpstreamRejection(t *testing.T) {
	var calls int32
	srv := upstream(t, &calls, http.StatusTooManyRequests, `{"error":{"code":"rate_limit_exceeded"}}`, nil)

	_, err := New(testConfig(srv.URL), nil, nil).Mint(context.Background(), uuid.New(), "alloy")

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusTooManyRequests, upErr.Status)
	assert.Contains(t, upErr.Body, "rate_limit_exceeded")
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no retries")
}
