package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/coachline/coachline/internal/api/middleware"
	"github.com/coachline/coachline/internal/services"
)

// CreatePromptRequest adds an inactive coaching prompt
type CreatePromptRequest struct {
	Name       string `json:"name"`
	PromptText string `json:"prompt_text"`
}

// ListPrompts returns every stored prompt (admin only)
func ListPrompts(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		prompts, err := svc.Prompts.List(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"prompts": prompts,
		})
	}
}

// CreatePrompt stores a new prompt (admin only)
func CreatePrompt(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		var req CreatePromptRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		prompt, err := svc.Prompts.Create(c.UserContext(), req.Name, req.PromptText, userContext.UserID)
		if err != nil {
			if errors.Is(err, services.ErrInvalidInput) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.Status(fiber.StatusCreated).JSON(prompt)
	}
}

// ActivatePrompt makes one prompt the active coaching prompt (admin only)
func ActivatePrompt(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid prompt ID",
			})
		}

		if err := svc.Prompts.Activate(c.UserContext(), id); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Prompt not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"success": true,
			"id":      id,
		})
	}
}
