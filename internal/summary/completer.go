package summary

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/coachline/coachline/internal/config"
)

// Completer runs one system+user chat completion and returns the text reply
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ProviderError is a completion failure with the provider's HTTP status
type ProviderError struct {
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion provider returned %d: %v", e.Status, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// OpenAICompleter talks to any OpenAI-compatible chat completions gateway
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter returns nil when no API key is configured so the worker
// can report the service as unconfigured.
func NewOpenAICompleter(cfg config.SummaryConfig) *OpenAICompleter {
	if cfg.APIKey == "" {
		return nil
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAICompleter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Complete performs a non-streaming completion
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &ProviderError{Status: apiErr.HTTPStatusCode, Err: err}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &ProviderError{Status: reqErr.HTTPStatusCode, Err: err}
		}
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
