package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
)

// PromptService manages the coaching system prompts
type PromptService struct {
	prompts repository.PromptRepository
}

// NewPromptService creates a prompt service
func NewPromptService(prompts repository.PromptRepository) *PromptService {
	return &PromptService{prompts: prompts}
}

// List returns every prompt newest first
func (s *PromptService) List(ctx context.Context) ([]*models.SystemPrompt, error) {
	prompts, err := s.prompts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	return prompts, nil
}

// Create stores an inactive prompt
func (s *PromptService) Create(ctx context.Context, name, text string, createdBy uuid.UUID) (*models.SystemPrompt, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: name and prompt_text are required", ErrInvalidInput)
	}

	prompt := &models.SystemPrompt{Name: name, PromptText: text, CreatedBy: &createdBy}
	if err := s.prompts.Create(ctx, prompt); err != nil {
		return nil, fmt.Errorf("failed to create prompt: %w", err)
	}
	return prompt, nil
}

// Activate makes id the only active prompt
func (s *PromptService) Activate(ctx context.Context, id uuid.UUID) error {
	if err := s.prompts.Activate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to activate prompt: %w", err)
	}
	return nil
}
