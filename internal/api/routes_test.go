package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachline/coachline/internal/auth"
	"github.com/coachline/coachline/internal/broker"
	"github.com/coachline/coachline/internal/config"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/realtime"
	"github.com/coachline/coachline/internal/repository/memory"
	"github.com/coachline/coachline/internal/services"
	"github.com/coachline/coachline/internal/summary"
)

const providerSession = `{"id":"sess_1","object":"realtime.session","model":"gpt-4o-realtime-preview-2024-12-17","voice":"alloy","client_secret":{"value":"ek_test","expires_at":1893456000}}`

type replyCompleter string

func (r replyCompleter) Complete(context.Context, string, string) (string, error) {
	return string(r), nil
}

type testEnv struct {
	app   *fiber.App
	store *memory.Store
	auth  *auth.Service
}

// provider fakes the hosted speech API: the session endpoint and the
// realtime websocket.
func provider(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(providerSession))
	})
	mux.HandleFunc("/realtime", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ek_test", r.Header.Get("Authorization"))
		assert.Equal(t, "gpt-4o-realtime-preview-2024-12-17", r.URL.Query().Get("model"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.created"}`))
		for i := 0; i < 2; i++ {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"response.audio_transcript.done","transcript":"Hello there"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestEnv(t *testing.T, apiKey string, completer summary.Completer) *testEnv {
	t.Helper()
	srv := provider(t)

	rtCfg := config.RealtimeConfig{
		APIKey:         apiKey,
		SessionsURL:    srv.URL + "/sessions",
		WebSocketURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime",
		Model:          "gpt-4o-realtime-preview-2024-12-17",
		DefaultVoice:   "alloy",
		RequestTimeout: 5 * time.Second,
	}

	store := memory.NewStore()
	authService := auth.NewService(store.Users(), config.AuthConfig{
		JWTSecret: "test-secret",
		Issuer:    "coachline-test",
		AccessTTL: time.Hour,
	}, nil)
	repos := services.Repositories{
		Sessions: store.Sessions(),
		Messages: store.Messages(),
		Prompts:  store.Prompts(),
		Users:    store.Users(),
	}
	svc := services.NewServices(repos, authService, broker.New(rtCfg, store.Prompts(), nil), completer, nil)

	app := fiber.New()
	SetupRoutes(app, svc, rtCfg, nil)
	return &testEnv{app: app, store: store, auth: authService}
}

func (e *testEnv) user(t *testing.T, email, role string) (*models.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	u := &models.User{Email: email, PasswordHash: hash, Role: role}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	token, err := e.auth.IssueToken(u)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "sk-test", nil)
	status, body := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, "sk-test", nil)
	env.user(t, "coach@example.com", models.RoleUser)

	status, body := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginBody("Coach@Example.com", "correct horse"))
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["access_token"])
	assert.Equal(t, "coach@example.com", body["user"].(map[string]any)["email"])

	status, body = env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginBody("coach@example.com", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", body["error"])
}

func loginBody(email, password string) map[string]string {
	return map[string]string{"email": email, "password": password}
}

func TestCheckAdmin(t *testing.T) {
	env := newTestEnv(t, "sk-test", nil)
	_, userToken := env.user(t, "user@example.com", models.RoleUser)
	_, adminToken := env.user(t, "admin@example.com", models.RoleAdmin)

	status, body := env.do(t, http.MethodGet, "/api/v1/auth/check-admin", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, map[string]any{"isAdmin": false, "error": "No authorization header"}, body)

	status, body = env.do(t, http.MethodGet, "/api/v1/auth/check-admin", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid user", body["error"])

	status, body = env.do(t, http.MethodGet, "/api/v1/auth/check-admin", userToken, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["isAdmin"])

	status, body = env.do(t, http.MethodGet, "/api/v1/auth/check-admin", adminToken, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["isAdmin"])
}

func TestRealtimeSession(t *testing.T) {
	env := newTestEnv(t, "sk-test", nil)
	_, token := env.user(t, "user@example.com", models.RoleUser)

	status, body := env.do(t, http.MethodPost, "/api/v1/realtime/session", "", map[string]string{"voice": "alloy"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, map[string]any{"error": "Unauthorized"}, body)

	status, body = env.do(t, http.MethodPost, "/api/v1/realtime/session", token, map[string]string{"voice": "verse"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "realtime.session", body["object"])
	assert.Equal(t, "ek_test", body["client_secret"].(map[string]any)["value"])
}

func TestRealtimeSession_MissingProviderKey(t *testing.T) {
	env := newTestEnv(t, "", nil)
	_, token := env.user(t, "user@example.com", models.RoleUser)

	status, body := env.do(t, http.MethodPost, "/api/v1/realtime/session", token, nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, broker.ErrConfiguration.Error(), body["error"])
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, "sk-test", nil)
	_, token := env.user(t, "user@example.com", models.RoleUser)
	_, otherToken := env.user(t, "other@example.com", models.RoleUser)

	started := time.Now().Add(-90 * time.Second).UTC()
	status, body := env.do(t, http.MethodPost, "/api/v1/sessions", token, map[string]any{"started_at": started})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "active", body["status"])
	id := body["id"].(string)

	for _, m := range []map[string]string{
		{"sender": "user", "content": "I want to run a marathon"},
		{"sender": "ai", "content": "Great goal. When is the race?"},
	} {
		status, _ = env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token, m)
		require.Equal(t, http.StatusCreated, status)
	}

	status, body = env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token, map[string]string{"sender": "robot", "content": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "sender")

	status, _ = env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/end", token, map[string]string{"status": "active"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/end", token, map[string]string{"status": "paused"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "paused", body["status"])
	assert.InDelta(t, 90, body["duration_seconds"], 2)

	status, body = env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/end", token, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "paused", body["status"], "ending twice keeps the first outcome")

	status, body = env.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/messages", token, nil)
	require.Equal(t, http.StatusOK, status)
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].(map[string]any)["sender"])
	assert.Equal(t, "ai", messages[1].(map[string]any)["sender"])

	status, _ = env.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/rating", token, map[string]any{"rating": 6})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/rating", token, map[string]any{"rating": 4, "feedback": []string{"helpful"}})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 4, body["rating"])

	status, body = env.do(t, http.MethodGet, "/api/v1/sessions", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["sessions"], 1)

	status, body = env.do(t, http.MethodGet, "/api/v1/sessions/"+id, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Session not found", body["error"])

	status, _ = env.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGenerateSummary(t *testing.T) {
	env := newTestEnv(t, "sk-test", replyCompleter("```json\n{\"summary\":\"Planned training.\",\"main_goals\":[\"Run a marathon\"],\"topics_discussed\":[\"running\"]}\n```"))
	_, token := env.user(t, "user@example.com", models.RoleUser)

	status, body := env.do(t, http.MethodPost, "/api/v1/sessions/summary", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "sessionId is required", body["error"])

	status, body = env.do(t, http.MethodPost, "/api/v1/sessions", token, nil)
	require.Equal(t, http.StatusCreated, status)
	id := body["id"].(string)
	status, _ = env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token, map[string]string{"sender": "user", "content": "I want to run a marathon"})
	require.Equal(t, http.StatusCreated, status)

	status, body = env.do(t, http.MethodPost, "/api/v1/sessions/summary", token, map[string]string{"sessionId": id})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Planned training.", body["summary"])
	assert.Equal(t, []any{"Run a marathon"}, body["main_goals"])
	assert.Equal(t, []any{"running"}, body["topics_discussed"])

	status, body = env.do(t, http.MethodGet, "/api/v1/sessions/"+id, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Planned training.", body["summary"])

	status, _ = env.do(t, http.MethodPost, "/api/v1/sessions/summary", token, map[string]string{"sessionId": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGenerateSummary_NotConfigured(t *testing.T) {
	env := newTestEnv(t, "sk-test", nil)
	_, token := env.user(t, "user@example.com", models.RoleUser)

	_, body := env.do(t, http.MethodPost, "/api/v1/sessions", token, nil)
	id := body["id"].(string)
	env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", token, map[string]string{"sender": "user", "content": "hello"})

	status, body := env.do(t, http.MethodPost, "/api/v1/sessions/summary", token, map[string]string{"sessionId": id})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "AI service not configured", body["error"])
}

func TestAdminPrompts(t *testing.T) {
	env := newTestEnv(t, "sk-test", nil)
	_, userToken := env.user(t, "user@example.com", models.RoleUser)
	_, adminToken := env.user(t, "admin@example.com", models.RoleAdmin)

	status, _ := env.do(t, http.MethodGet, "/api/v1/admin/prompts", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := env.do(t, http.MethodPost, "/api/v1/admin/prompts", adminToken, map[string]string{"name": "brief", "prompt_text": "Keep answers short."})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, false, body["is_active"])
	id := body["id"].(string)

	status, _ = env.do(t, http.MethodPost, "/api/v1/admin/prompts/"+id+"/activate", adminToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/api/v1/admin/prompts/"+uuid.NewString()+"/activate", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	active, err := env.store.Prompts().GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Keep answers short.", active.PromptText)
}

func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.ShutdownWithTimeout(time.Second) })
	return ln.Addr().String()
}

func TestRelay_PipesEventsBothWays(t *testing.T) {
	env := newTestEnv(t, "sk-test", nil)
	_, token := env.user(t, "user@example.com", models.RoleUser)
	addr := serve(t, env.app)

	d := &realtime.WebSocketDialer{URL: "ws://" + addr + "/api/v1/realtime/relay?voice=alloy"}
	tr, err := d.Dial(context.Background(), realtime.Credential{Value: token})
	require.NoError(t, err)
	defer tr.Close()

	next := func() realtime.Event {
		select {
		case ev := <-tr.Events():
			return ev
		case <-time.After(3 * time.Second):
			t.Fatal("no event")
			return realtime.Event{}
		}
	}

	assert.Equal(t, realtime.EventChannelOpened, next().Kind)
	assert.Equal(t, realtime.EventSessionReady, next().Kind)

	require.NoError(t, tr.SendText(context.Background(), "hi"))
	done := next()
	assert.Equal(t, realtime.EventOutputTranscriptDone, done.Kind)
	assert.Equal(t, "Hello there", done.Text)
}

func TestRelay_RejectsHandshakeWhenMintFails(t *testing.T) {
	env := newTestEnv(t, "", nil)
	_, token := env.user(t, "user@example.com", models.RoleUser)
	addr := serve(t, env.app)

	d := &realtime.WebSocketDialer{URL: "ws://" + addr + "/api/v1/realtime/relay"}
	_, err := d.Dial(context.Background(), realtime.Credential{Value: token})

	var negErr *realtime.NegotiationError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, http.StatusInternalServerError, negErr.Status)
	assert.Contains(t, negErr.Body, "not configured")
}

func TestRelay_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, "sk-test", nil)
	addr := serve(t, env.app)

	d := &realtime.WebSocketDialer{URL: "ws://" + addr + "/api/v1/realtime/relay"}
	_, err := d.Dial(context.Background(), realtime.Credential{Value: "forged"})

	var negErr *realtime.NegotiationError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, http.StatusUnauthorized, negErr.Status)
}
