package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/coachline/coachline/internal/api/middleware"
	"github.com/coachline/coachline/internal/auth"
	"github.com/coachline/coachline/internal/models"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	User        *UserResponse `json:"user"`
	AccessToken string        `json:"access_token"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func userResponse(u *models.User) *UserResponse {
	return &UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

// Login handles user login
func Login(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" || req.Password == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Email and password are required",
			})
		}

		user, token, err := authService.Login(c.UserContext(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid email or password",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Login failed",
			})
		}

		return c.JSON(LoginResponse{
			User:        userResponse(user),
			AccessToken: token,
		})
	}
}

// GetCurrentUser returns the authenticated user
func GetCurrentUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		return c.JSON(fiber.Map{
			"id":    userContext.UserID,
			"email": userContext.Email,
			"role":  userContext.Role,
		})
	}
}

// CheckAdmin reports whether the bearer of the request holds the admin role.
// It answers with isAdmin on every path so callers can branch on one field.
func CheckAdmin(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"isAdmin": false,
				"error":   "No authorization header",
			})
		}

		user, err := authService.ValidateAccessToken(c.UserContext(), auth.ExtractTokenFromBearer(header))
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"isAdmin": false,
					"error":   "Invalid user",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"isAdmin": false,
				"error":   "Failed to check role",
			})
		}

		isAdmin, err := authService.IsAdmin(c.UserContext(), user.ID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"isAdmin": false,
				"error":   "Failed to check role",
			})
		}

		return c.JSON(fiber.Map{"isAdmin": isAdmin})
	}
}
