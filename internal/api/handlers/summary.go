package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/api/middleware"
	"github.com/coachline/coachline/internal/logging"
	"github.com/coachline/coachline/internal/services"
	"github.com/coachline/coachline/internal/summary"
)

// summaryTimeout bounds one analysis run. The run is detached from the
// request so a client hanging up does not lose the result.
const summaryTimeout = 2 * time.Minute

type SummaryHandler struct {
	sessions *services.SessionService
	log      logrus.FieldLogger
}

func NewSummaryHandler(sessions *services.SessionService, log logrus.FieldLogger) *SummaryHandler {
	return &SummaryHandler{
		sessions: sessions,
		log:      logging.OrDiscard(log),
	}
}

// GenerateSummary handles POST /api/v1/sessions/summary
func (h *SummaryHandler) GenerateSummary(c *fiber.Ctx) error {
	userContext := middleware.GetUserContext(c)
	if userContext == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.BodyParser(&req); err != nil || req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "sessionId is required",
		})
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid session ID",
		})
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.UserContext()), summaryTimeout)
	defer cancel()

	result, err := h.sessions.Summarize(ctx, userContext.UserID, sessionID)
	if err != nil {
		var summaryErr *summary.Error
		switch {
		case errors.Is(err, services.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		case errors.As(err, &summaryErr):
			return c.Status(summaryErr.Status).JSON(fiber.Map{
				"error": summaryErr.Message,
			})
		default:
			h.log.WithError(err).WithField("session_id", sessionID).Error("summary generation failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal server error",
			})
		}
	}

	return c.JSON(fiber.Map{
		"success":          true,
		"summary":          result.Summary,
		"main_goals":       result.MainGoals,
		"topics_discussed": result.TopicsDiscussed,
	})
}
