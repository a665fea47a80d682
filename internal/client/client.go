// Package client talks to the coachline HTTP API. It is the remote store
// behind the lifecycle manager and the credential source behind a realtime
// conversation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coachline/coachline/internal/lifecycle"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/realtime"
)

// ErrNotLoggedIn is returned by calls that need an access token before one is set
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client is safe for concurrent use
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithToken starts the client with an access token
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// New creates a client for the server at baseURL, e.g. http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the access token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current access token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User is the account returned on login
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
}

// Login exchanges credentials for an access token and keeps it for later calls
func (c *Client) Login(ctx context.Context, email, password string) (*User, string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
		User        User   `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, "", err
	}
	c.SetToken(out.AccessToken)
	return &out.User, out.AccessToken, nil
}

// CheckAdmin reports whether the current token belongs to an admin
func (c *Client) CheckAdmin(ctx context.Context) (bool, error) {
	var out struct {
		IsAdmin bool `json:"isAdmin"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/check-admin", nil, &out); err != nil {
		return false, err
	}
	return out.IsAdmin, nil
}

// CreateSession implements lifecycle.Store
func (c *Client) CreateSession(ctx context.Context, startedAt time.Time) (*models.Session, error) {
	var session models.Session
	body := map[string]time.Time{"started_at": startedAt}
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// EndSession implements lifecycle.Store
func (c *Client) EndSession(ctx context.Context, id uuid.UUID, req lifecycle.EndRequest) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodPost, "/sessions/"+id.String()+"/end", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// AppendMessage implements lifecycle.Store
func (c *Client) AppendMessage(ctx context.Context, id uuid.UUID, sender models.Sender, content string) (*models.Message, error) {
	var msg models.Message
	body := map[string]string{"sender": string(sender), "content": content}
	if err := c.do(ctx, http.MethodPost, "/sessions/"+id.String()+"/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetSession implements lifecycle.Store
func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+id.String(), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListMessages implements lifecycle.Store
func (c *Client) ListMessages(ctx context.Context, id uuid.UUID) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions/"+id.String()+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// ListSessions implements lifecycle.Store
func (c *Client) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var out struct {
		Sessions []*models.Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Summarize implements lifecycle.Store
func (c *Client) Summarize(ctx context.Context, id uuid.UUID) (*models.Summary, error) {
	var out struct {
		Success bool `json:"success"`
		models.Summary
	}
	body := map[string]string{"sessionId": id.String()}
	if err := c.do(ctx, http.MethodPost, "/sessions/summary", body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &APIError{Status: http.StatusOK, Message: "summary was not generated"}
	}
	return &out.Summary, nil
}

// UpdateRating implements lifecycle.Store
func (c *Client) UpdateRating(ctx context.Context, id uuid.UUID, rating int, feedback []string) (*models.Session, error) {
	var session models.Session
	body := map[string]any{"rating": rating, "feedback": feedback}
	if err := c.do(ctx, http.MethodPut, "/sessions/"+id.String()+"/rating", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Credential implements realtime.CredentialSource by asking the broker for a
// fresh ephemeral key. The key is handed to the caller and not kept.
func (c *Client) Credential(ctx context.Context, voice string) (realtime.Credential, error) {
	var out struct {
		ClientSecret struct {
			Value     string `json:"value"`
			ExpiresAt int64  `json:"expires_at"`
		} `json:"client_secret"`
	}
	if err := c.do(ctx, http.MethodPost, "/realtime/session", map[string]string{"voice": voice}, &out); err != nil {
		return realtime.Credential{}, err
	}
	if out.ClientSecret.Value == "" {
		return realtime.Credential{}, realtime.ErrNoCredential
	}

	cred := realtime.Credential{Value: out.ClientSecret.Value}
	if out.ClientSecret.ExpiresAt > 0 {
		cred.ExpiresAt = time.Unix(out.ClientSecret.ExpiresAt, 0)
	}
	return cred, nil
}

// RelayCredentials returns a credential source for the server relay, which
// authenticates with the access token and mints upstream on its own.
func (c *Client) RelayCredentials() realtime.CredentialSource {
	return relaySource{c}
}

type relaySource struct{ c *Client }

func (r relaySource) Credential(context.Context, string) (realtime.Credential, error) {
	token := r.c.Token()
	if token == "" {
		return realtime.Credential{}, ErrNotLoggedIn
	}
	return realtime.Credential{Value: token}, nil
}

// ListPrompts returns every coaching prompt (admin only)
func (c *Client) ListPrompts(ctx context.Context) ([]*models.SystemPrompt, error) {
	var out struct {
		Prompts []*models.SystemPrompt `json:"prompts"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/prompts", nil, &out); err != nil {
		return nil, err
	}
	return out.Prompts, nil
}

// CreatePrompt stores an inactive prompt (admin only)
func (c *Client) CreatePrompt(ctx context.Context, name, text string) (*models.SystemPrompt, error) {
	var prompt models.SystemPrompt
	body := map[string]string{"name": name, "prompt_text": text}
	if err := c.do(ctx, http.MethodPost, "/admin/prompts", body, &prompt); err != nil {
		return nil, err
	}
	return &prompt, nil
}

// ActivatePrompt makes id the active prompt (admin only)
func (c *Client) ActivatePrompt(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/admin/prompts/"+id.String()+"/activate", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return parseError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func parseError(status int, body []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{Status: status, Message: payload.Error}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}

var (
	_ lifecycle.Store           = (*Client)(nil)
	_ realtime.CredentialSource = (*Client)(nil)
)
