package services

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/auth"
	"github.com/coachline/coachline/internal/broker"
	"github.com/coachline/coachline/internal/logging"
	"github.com/coachline/coachline/internal/repository"
	"github.com/coachline/coachline/internal/summary"
)

var (
	// ErrNotFound is returned when a row is missing or not visible to the caller
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for requests that fail validation
	ErrInvalidInput = errors.New("invalid input")
)

// Repositories groups the storage the services are built on
type Repositories struct {
	Sessions repository.SessionRepository
	Messages repository.MessageRepository
	Prompts  repository.PromptRepository
	Users    repository.UserRepository
}

// Services holds all service instances the handlers use
type Services struct {
	Auth     *auth.Service
	Sessions *SessionService
	Prompts  *PromptService
	Broker   *broker.Broker
	Summary  *summary.Worker
}

// NewServices wires the services together
func NewServices(repos Repositories, authService *auth.Service, b *broker.Broker, completer summary.Completer, log logrus.FieldLogger) *Services {
	log = logging.OrDiscard(log)
	worker := summary.NewWorker(repos.Sessions, repos.Messages, completer, log.WithField("component", "summary"))

	return &Services{
		Auth:     authService,
		Sessions: NewSessionService(repos.Sessions, repos.Messages, worker, log.WithField("component", "sessions")),
		Prompts:  NewPromptService(repos.Prompts),
		Broker:   b,
		Summary:  worker,
	}
}
