package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/coachline/coachline/internal/api/middleware"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/services"
)

// CreateSessionRequest optionally pins the start time to the client clock
type CreateSessionRequest struct {
	StartedAt *time.Time `json:"started_at"`
}

// EndSessionRequest closes an active session
type EndSessionRequest struct {
	Status          models.SessionStatus `json:"status"`
	EndedAt         *time.Time           `json:"ended_at"`
	DurationSeconds *int                 `json:"duration_seconds"`
}

// AppendMessageRequest stores one finalized message
type AppendMessageRequest struct {
	Sender  models.Sender `json:"sender"`
	Content string        `json:"content"`
}

// RatingRequest records the user's rating of a session
type RatingRequest struct {
	Rating   int      `json:"rating"`
	Feedback []string `json:"feedback"`
}

// sessionError maps service errors onto HTTP responses
func sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func sessionParam(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

// CreateSession starts a new coaching session for the caller
func CreateSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		var req CreateSessionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid request body",
				})
			}
		}

		session, err := svc.Sessions.Create(c.UserContext(), userContext.UserID, req.StartedAt)
		if err != nil {
			return sessionError(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(session)
	}
}

// GetSessions returns the caller's sessions newest first
func GetSessions(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		sessions, err := svc.Sessions.List(c.UserContext(), userContext.UserID)
		if err != nil {
			return sessionError(c, err)
		}

		return c.JSON(fiber.Map{
			"sessions": sessions,
		})
	}
}

// GetSession returns a specific session
func GetSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		id, ok := sessionParam(c)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid session ID",
			})
		}

		session, err := svc.Sessions.Get(c.UserContext(), userContext.UserID, id)
		if err != nil {
			return sessionError(c, err)
		}

		return c.JSON(session)
	}
}

// GetSessionMessages returns the transcript of a session oldest first
func GetSessionMessages(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		id, ok := sessionParam(c)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid session ID",
			})
		}

		messages, err := svc.Sessions.Messages(c.UserContext(), userContext.UserID, id)
		if err != nil {
			return sessionError(c, err)
		}

		return c.JSON(fiber.Map{
			"messages": messages,
		})
	}
}

// AppendMessage stores a finalized user or AI message
func AppendMessage(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		id, ok := sessionParam(c)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid session ID",
			})
		}

		var req AppendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		msg, err := svc.Sessions.AppendMessage(c.UserContext(), userContext.UserID, id, req.Sender, req.Content)
		if err != nil {
			return sessionError(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(msg)
	}
}

// EndSession closes a session as completed or paused. Repeating the call on a
// closed session returns it unchanged.
func EndSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		id, ok := sessionParam(c)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid session ID",
			})
		}

		var req EndSessionRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		session, err := svc.Sessions.End(c.UserContext(), userContext.UserID, id, services.EndInput{
			Status:          req.Status,
			EndedAt:         req.EndedAt,
			DurationSeconds: req.DurationSeconds,
		})
		if err != nil {
			return sessionError(c, err)
		}

		return c.JSON(session)
	}
}

// RateSession records a 1..5 rating and optional feedback tags
func RateSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		id, ok := sessionParam(c)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid session ID",
			})
		}

		var req RatingRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		session, err := svc.Sessions.Rate(c.UserContext(), userContext.UserID, id, req.Rating, req.Feedback)
		if err != nil {
			return sessionError(c, err)
		}

		return c.JSON(session)
	}
}
