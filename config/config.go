package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Backends accepted in STORE_BACKEND.
var knownBackends = map[string]bool{
	"file": true, "table": true, "memory": true, "sqlite": true,
	"postgres": true, "redis": true, "s3": true,
}

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AWS      AWSConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `env:"PORT"                 envDefault:"8080"`
	ReadTimeout        time.Duration `env:"READ_TIMEOUT"         envDefault:"30s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT"        envDefault:"30s"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"https://sumichichi2015.github.io,http://localhost:5173,http://localhost:3000"` // comma-separated, or "*"
}

// StoreConfig selects the persistence backend and the meeting rules.
type StoreConfig struct {
	Backend          string        `env:"STORE_BACKEND"     envDefault:"file"`
	DataDir          string        `env:"DATA_DIR"          envDefault:"data"`
	TableFile        string        `env:"TABLE_FILE"        envDefault:"data/meetings.json"`
	SQLitePath       string        `env:"SQLITE_PATH"       envDefault:"data/meetings.db"`
	ParticipantLimit int           `env:"PARTICIPANT_LIMIT" envDefault:"15"`
	ExpiryWindow     time.Duration `env:"EXPIRY_WINDOW"     envDefault:"720h"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"` // e.g. postgres://localhost:5432/meetings?sslmode=disable
}

// RedisConfig holds Redis connection settings. Realtime enables the
// pub/sub bridge for viewer notifications across instances.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
	Realtime bool   `env:"REALTIME_REDIS" envDefault:"false"`
}

// AWSConfig holds AWS credentials and the meetings bucket.
type AWSConfig struct {
	Region          string `env:"AWS_REGION"             envDefault:"us-east-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	MeetingsBucket  string `env:"AWS_S3_MEETINGS_BUCKET"`
	Endpoint        string `env:"AWS_S3_ENDPOINT"` // MinIO or another S3-compatible store
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// ZapLevel parses Level.
func (c LogConfig) ZapLevel() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.Level)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every setting that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if !knownBackends[c.Store.Backend] {
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not supported", c.Store.Backend))
	}
	if c.Store.ParticipantLimit <= 0 {
		errs = append(errs, fmt.Errorf("PARTICIPANT_LIMIT must be positive, got %d", c.Store.ParticipantLimit))
	}
	if c.Store.ExpiryWindow <= 0 {
		errs = append(errs, fmt.Errorf("EXPIRY_WINDOW must be positive, got %s", c.Store.ExpiryWindow))
	}
	switch c.Store.Backend {
	case "file":
		if c.Store.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required for the file backend"))
		}
	case "table":
		if c.Store.TableFile == "" {
			errs = append(errs, errors.New("TABLE_FILE is required for the table backend"))
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case "s3":
		if c.AWS.MeetingsBucket == "" {
			errs = append(errs, errors.New("AWS_S3_MEETINGS_BUCKET is required for the s3 backend"))
		}
	}
	if (c.Store.Backend == "redis" || c.Redis.Realtime) && c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
