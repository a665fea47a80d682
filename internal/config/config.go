package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	CORSOrigins string `mapstructure:"cors_origins"`
	// Storage is "postgres" or "memory"
	Storage string `mapstructure:"storage"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	AccessTTL time.Duration `mapstructure:"access_ttl"`

	// An admin account created at startup when both are set and the email is unknown
	BootstrapEmail    string `mapstructure:"bootstrap_email"`
	BootstrapPassword string `mapstructure:"bootstrap_password"`
}

// RealtimeConfig describes the hosted speech model and the session
// parameters negotiated for every ephemeral credential.
type RealtimeConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	SessionsURL        string        `mapstructure:"sessions_url"`
	NegotiationURL     string        `mapstructure:"negotiation_url"`
	WebSocketURL       string        `mapstructure:"websocket_url"`
	Model              string        `mapstructure:"model"`
	DefaultVoice       string        `mapstructure:"default_voice"`
	TranscriptionModel string        `mapstructure:"transcription_model"`
	VADThreshold       float64       `mapstructure:"vad_threshold"`
	PrefixPaddingMs    int           `mapstructure:"prefix_padding_ms"`
	SilenceDurationMs  int           `mapstructure:"silence_duration_ms"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

type SummaryConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("server.storage", "postgres")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "coachline")
	v.SetDefault("database.database", "coachline")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("auth.issuer", "coachline")
	v.SetDefault("auth.access_ttl", 24*time.Hour)

	v.SetDefault("realtime.sessions_url", "https://api.openai.com/v1/realtime/sessions")
	v.SetDefault("realtime.negotiation_url", "https://api.openai.com/v1/realtime")
	v.SetDefault("realtime.websocket_url", "wss://api.openai.com/v1/realtime")
	v.SetDefault("realtime.model", "gpt-4o-realtime-preview-2024-12-17")
	v.SetDefault("realtime.default_voice", "alloy")
	v.SetDefault("realtime.transcription_model", "whisper-1")
	v.SetDefault("realtime.vad_threshold", 0.5)
	v.SetDefault("realtime.prefix_padding_ms", 300)
	v.SetDefault("realtime.silence_duration_ms", 800)
	v.SetDefault("realtime.request_timeout", 30*time.Second)

	v.SetDefault("summary.base_url", "https://ai.gateway.lovable.dev/v1")
	v.SetDefault("summary.model", "google/gemini-3-flash-preview")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads config.json from the usual locations, falling back to defaults
// when no file exists, and applies environment overrides on top.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	// Add config paths
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Check for user config directory
	homeDir, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".coachline"))
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("COACHLINE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("COACHLINE_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if origins := os.Getenv("COACHLINE_CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = origins
	}
	if storage := os.Getenv("COACHLINE_STORAGE"); storage != "" {
		cfg.Server.Storage = strings.ToLower(storage)
	}

	// Database overrides
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if secret := os.Getenv("COACHLINE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if email := os.Getenv("COACHLINE_BOOTSTRAP_EMAIL"); email != "" {
		cfg.Auth.BootstrapEmail = email
	}
	if password := os.Getenv("COACHLINE_BOOTSTRAP_PASSWORD"); password != "" {
		cfg.Auth.BootstrapPassword = password
	}

	// Provider secrets only ever come from the environment or the config file
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Realtime.APIKey = key
	}
	if key := os.Getenv("SUMMARY_API_KEY"); key != "" {
		cfg.Summary.APIKey = key
	}
	if model := os.Getenv("SUMMARY_MODEL"); model != "" {
		cfg.Summary.Model = model
	}

	if level := os.Getenv("COACHLINE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
}

// Addr returns the listen address for the HTTP server
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
