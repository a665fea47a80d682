package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/api"
	"github.com/coachline/coachline/internal/auth"
	"github.com/coachline/coachline/internal/broker"
	"github.com/coachline/coachline/internal/config"
	"github.com/coachline/coachline/internal/database"
	"github.com/coachline/coachline/internal/logging"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
	"github.com/coachline/coachline/internal/repository/memory"
	"github.com/coachline/coachline/internal/repository/postgres"
	"github.com/coachline/coachline/internal/services"
	"github.com/coachline/coachline/internal/summary"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := logging.New(cfg.Log)

	repos, closeStore, err := openStorage(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open storage")
	}
	defer closeStore()

	if cfg.Auth.JWTSecret == "change-me-in-production" {
		log.Warn("Using default JWT secret. Set COACHLINE_JWT_SECRET in production!")
	}
	authService := auth.NewService(repos.Users, cfg.Auth, log.WithField("component", "auth"))

	if err := bootstrapAdmin(context.Background(), repos.Users, cfg.Auth, log); err != nil {
		log.WithError(err).Fatal("Failed to create bootstrap admin")
	}

	if cfg.Realtime.APIKey == "" {
		log.Warn("OPENAI_API_KEY is not set; realtime sessions will fail")
	}
	b := broker.New(cfg.Realtime, repos.Prompts, log.WithField("component", "broker"))

	var completer summary.Completer
	if c := summary.NewOpenAICompleter(cfg.Summary); c != nil {
		completer = c
	} else {
		log.Warn("SUMMARY_API_KEY is not set; session summaries will fail")
	}

	svc := services.NewServices(repos, authService, b, completer, log)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Coachline",
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: log.Writer()}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	api.SetupRoutes(app, svc, cfg.Realtime, log)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Shutdown failed")
		}
	}()

	log.WithField("addr", cfg.Server.Addr()).Info("Coachline starting")
	if err := app.Listen(cfg.Server.Addr()); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

// openStorage connects the configured store. Postgres is migrated on start.
func openStorage(cfg *config.Config, log logrus.FieldLogger) (services.Repositories, func(), error) {
	switch strings.ToLower(cfg.Server.Storage) {
	case "memory":
		log.Warn("Using in-memory storage; data is lost on restart")
		store := memory.NewStore()
		return services.Repositories{
			Sessions: store.Sessions(),
			Messages: store.Messages(),
			Prompts:  store.Prompts(),
			Users:    store.Users(),
		}, func() {}, nil

	case "", "postgres":
		db, err := database.NewConnection(context.Background(), cfg.Database)
		if err != nil {
			return services.Repositories{}, nil, err
		}
		if err := database.RunMigrations(cfg.Database, log); err != nil {
			db.Close()
			return services.Repositories{}, nil, err
		}
		return services.Repositories{
			Sessions: postgres.NewSessionRepository(db.DB),
			Messages: postgres.NewMessageRepository(db.DB),
			Prompts:  postgres.NewPromptRepository(db.DB),
			Users:    postgres.NewUserRepository(db.DB),
		}, func() { db.Close() }, nil

	default:
		return services.Repositories{}, nil, errors.New("unknown storage " + cfg.Server.Storage)
	}
}

// bootstrapAdmin creates the configured admin account if it does not exist yet
func bootstrapAdmin(ctx context.Context, users repository.UserRepository, cfg config.AuthConfig, log logrus.FieldLogger) error {
	if cfg.BootstrapEmail == "" || cfg.BootstrapPassword == "" {
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.BootstrapEmail))
	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.BootstrapPassword)
	if err != nil {
		return err
	}
	user := &models.User{Email: email, DisplayName: "Admin", PasswordHash: hash, Role: models.RoleAdmin}
	if err := users.Create(ctx, user); err != nil {
		return err
	}
	log.WithField("email", email).Info("Created bootstrap admin")
	return nil
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
