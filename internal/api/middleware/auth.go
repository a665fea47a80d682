package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/coachline/coachline/internal/auth"
	"github.com/coachline/coachline/internal/models"
)

const userContextKey = "user_context"

// AuthConfig holds the auth middleware configuration
type AuthConfig struct {
	AuthService *auth.Service
	RequireRole string // If set, requires specific role
}

// AuthRequired creates a middleware that requires a valid bearer token
func AuthRequired(authService *auth.Service) fiber.Handler {
	return AuthMiddleware(AuthConfig{AuthService: authService})
}

// RequireRole creates a middleware that requires a specific role
func RequireRole(authService *auth.Service, role string) fiber.Handler {
	return AuthMiddleware(AuthConfig{AuthService: authService, RequireRole: role})
}

// AuthMiddleware is the main authentication middleware
func AuthMiddleware(config AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ExtractTokenFromBearer(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		user, err := config.AuthService.ValidateAccessToken(c.UserContext(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Unauthorized",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to verify credentials",
			})
		}

		if config.RequireRole != "" && user.Role != config.RequireRole {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}

		storeUserContext(c, user)
		return c.Next()
	}
}

func storeUserContext(c *fiber.Ctx, user *models.User) {
	c.Locals("user_id", user.ID.String())
	c.Locals(userContextKey, &models.UserContext{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
}

// GetUserContext retrieves the user context from the fiber context
func GetUserContext(c *fiber.Ctx) *models.UserContext {
	if ctx := c.Locals(userContextKey); ctx != nil {
		if userContext, ok := ctx.(*models.UserContext); ok {
			return userContext
		}
	}
	return nil
}

// GetUserID retrieves the user ID from the fiber context
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	if uc := GetUserContext(c); uc != nil {
		return uc.UserID, nil
	}
	return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
}
