package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/api/handlers"
	"github.com/coachline/coachline/internal/api/middleware"
	"github.com/coachline/coachline/internal/config"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/services"
)

// Realtime credentials a single user may mint per window
const (
	realtimeMintLimit  = 10
	realtimeMintWindow = time.Minute
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, svc *services.Services, cfg config.RealtimeConfig, log logrus.FieldLogger) {
	api := app.Group("/api/v1")

	// ========================================
	// Public routes (no authentication needed)
	// ========================================

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "coachline",
		})
	})

	authGroup := api.Group("/auth")
	authGroup.Post("/login", middleware.AuthRateLimit(), handlers.Login(svc.Auth))
	authGroup.Get("/check-admin", handlers.CheckAdmin(svc.Auth))

	// ========================================
	// Protected routes (authentication required)
	// ========================================

	protected := api.Group("", middleware.AuthRequired(svc.Auth))

	protected.Get("/auth/me", handlers.GetCurrentUser())

	// Voice sessions
	realtimeHandler := handlers.NewRealtimeHandler(svc.Broker, cfg, log)
	realtimeLimit := middleware.RealtimeRateLimit(realtimeMintLimit, realtimeMintWindow)
	protected.Post("/realtime/session", realtimeLimit, realtimeHandler.CreateSession)
	protected.Get("/realtime/relay", realtimeLimit, realtimeHandler.PrepareRelay, websocket.New(realtimeHandler.Relay))

	// Coaching sessions. The summary route is registered before /:id.
	summaryHandler := handlers.NewSummaryHandler(svc.Sessions, log)
	protected.Post("/sessions/summary", summaryHandler.GenerateSummary)

	protected.Post("/sessions", handlers.CreateSession(svc))
	protected.Get("/sessions", handlers.GetSessions(svc))
	protected.Get("/sessions/:id", handlers.GetSession(svc))
	protected.Get("/sessions/:id/messages", handlers.GetSessionMessages(svc))
	protected.Post("/sessions/:id/messages", handlers.AppendMessage(svc))
	protected.Post("/sessions/:id/end", handlers.EndSession(svc))
	protected.Put("/sessions/:id/rating", handlers.RateSession(svc))

	// Prompt management (admin only)
	admin := protected.Group("/admin", middleware.RequireRole(svc.Auth, models.RoleAdmin))
	admin.Get("/prompts", handlers.ListPrompts(svc))
	admin.Post("/prompts", handlers.CreatePrompt(svc))
	admin.Post("/prompts/:id/activate", handlers.ActivatePrompt(svc))
}
