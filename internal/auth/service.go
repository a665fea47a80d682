package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/config"
	"github.com/coachline/coachline/internal/logging"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
)

var (
	// ErrUnauthorized is returned when the caller has no valid identity
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned when login credentials are invalid
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")
)

// Service handles authentication operations
type Service struct {
	users repository.UserRepository
	jwt   *JWTService
	log   logrus.FieldLogger
}

// NewService creates a new auth service
func NewService(users repository.UserRepository, cfg config.AuthConfig, log logrus.FieldLogger) *Service {
	return &Service{
		users: users,
		jwt:   NewJWTService(cfg.JWTSecret, cfg.Issuer, cfg.AccessTTL),
		log:   logging.OrDiscard(log),
	}
}

// Login verifies credentials and issues an access token
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign token: %w", err)
	}

	s.log.WithField("user_id", user.ID).Info("user logged in")
	return user, token, nil
}

// IssueToken mints an access token for an existing user
func (s *Service) IssueToken(user *models.User) (string, error) {
	return s.jwt.GenerateAccessToken(user.ID, user.Email, user.Role)
}

// ValidateAccessToken resolves a bearer token to the user it was issued for.
// Every failure is reported as ErrUnauthorized wrapping the cause.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, ErrUserNotFound)
		}
		return nil, err
	}

	return user, nil
}

// IsAdmin reports whether the user currently holds the admin role
func (s *Service) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsAdmin(), nil
}
