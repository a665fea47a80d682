// Package broker exchanges an authenticated caller for a short-lived
// credential that opens exactly one realtime voice session with the hosted
// speech model. The long-lived provider key never leaves this package.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/config"
	"github.com/coachline/coachline/internal/logging"
	"github.com/coachline/coachline/internal/repository"
)

// ErrConfiguration is returned when the provider key is missing
var ErrConfiguration = errors.New("realtime provider API key is not configured")

// UpstreamError carries the provider's rejection for diagnostics
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("realtime provider error: %d - %s", e.Status, e.Body)
}

// TurnDetection configures server-side voice activity detection
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

// TranscriptionConfig selects the model that transcribes the caller's speech
type TranscriptionConfig struct {
	Model string `json:"model"`
}

// SessionRequest is the body sent to the provider's session endpoint
type SessionRequest struct {
	Model                   string              `json:"model"`
	Voice                   string              `json:"voice"`
	Instructions            string              `json:"instructions"`
	InputAudioTranscription TranscriptionConfig `json:"input_audio_transcription"`
	TurnDetection           TurnDetection       `json:"turn_detection"`
}

// ClientSecret is the ephemeral credential minted by the provider
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// Session is the provider's answer. Raw holds the body verbatim so every
// negotiated field reaches the caller unchanged.
type Session struct {
	ID           string       `json:"id"`
	Model        string       `json:"model"`
	Voice        string       `json:"voice"`
	ClientSecret ClientSecret `json:"client_secret"`

	Raw json.RawMessage `json:"-"`
}

// Broker mints ephemeral realtime credentials
type Broker struct {
	cfg        config.RealtimeConfig
	prompts    repository.PromptRepository
	httpClient *http.Client
	log        logrus.FieldLogger
}

// Option customises a Broker
type Option func(*Broker)

// WithHTTPClient replaces the client used for the upstream call
func WithHTTPClient(c *http.Client) Option {
	return func(b *Broker) { b.httpClient = c }
}

// New creates a broker
func New(cfg config.RealtimeConfig, prompts repository.PromptRepository, log logrus.FieldLogger, opts ...Option) *Broker {
	b := &Broker{
		cfg:        cfg,
		prompts:    prompts,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		log:        logging.OrDiscard(log),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mint performs a single upstream session-creation call on behalf of userID.
// There are no retries here; callers own the retry policy.
func (b *Broker) Mint(ctx context.Context, userID uuid.UUID, voice string) (*Session, error) {
	log := b.log.WithField("user_id", userID)

	if b.cfg.APIKey == "" {
		log.Error("realtime provider key is not set")
		return nil, ErrConfiguration
	}

	voice = strings.TrimSpace(voice)
	if voice == "" {
		voice = b.cfg.DefaultVoice
	}

	reqBody := SessionRequest{
		Model:        b.cfg.Model,
		Voice:        voice,
		Instructions: b.instructions(ctx, log),
		InputAudioTranscription: TranscriptionConfig{
			Model: b.cfg.TranscriptionModel,
		},
		TurnDetection: TurnDetection{
			Type:              "server_vad",
			Threshold:         b.cfg.VADThreshold,
			PrefixPaddingMs:   b.cfg.PrefixPaddingMs,
			SilenceDurationMs: b.cfg.SilenceDurationMs,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.SessionsURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	log.WithField("voice", voice).Info("creating ephemeral realtime session")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("realtime session request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read realtime session response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("status", resp.StatusCode).Error("realtime provider rejected session creation")
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var session Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("failed to decode realtime session response: %w", err)
	}
	session.Raw = respBody

	log.WithField("expires_at", session.ClientSecret.ExpiresAt).Info("realtime session created")
	return &session, nil
}

// instructions resolves the active coaching prompt. Lookup problems are
// logged and answered with DefaultPrompt; they never fail the request.
func (b *Broker) instructions(ctx context.Context, log logrus.FieldLogger) string {
	if b.prompts == nil {
		return DefaultPrompt
	}

	prompt, err := b.prompts.GetActive(ctx)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		log.Info("no active prompt found, using default")
		return DefaultPrompt
	case err != nil:
		log.WithError(err).Warn("error fetching prompt, using default")
		return DefaultPrompt
	case strings.TrimSpace(prompt.PromptText) == "":
		log.Info("active prompt is empty, using default")
		return DefaultPrompt
	}

	log.WithField("prompt_id", prompt.ID).Info("using custom system prompt")
	return prompt.PromptText
}
