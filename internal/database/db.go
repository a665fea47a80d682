package database

import (
	"context"
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v4/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"

	"github.com/coachline/coachline/internal/config"
)

// DB is the shared connection pool
type DB struct {
	*sqlx.DB
}

// NewConnection opens the pool and waits until Postgres answers a ping
func NewConnection(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	db, err := sqlx.Open("pgx", GetDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &DB{db}, nil
}

// GetDSN returns the connection URL shared by the driver and migrations.
// Credentials are escaped so passwords may contain URL syntax.
func GetDSN(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}
