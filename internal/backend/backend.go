// Package backend holds the persistence realizations behind the meeting
// store. Every backend stores one codec-encoded record per meeting id and
// guarantees that a reader never observes a partially written record.
package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/meeting-scheduler/backend/internal/models"
	"github.com/meeting-scheduler/backend/pkg/database"
	"github.com/meeting-scheduler/backend/pkg/redis"
	"github.com/meeting-scheduler/backend/pkg/storage"
)

// ErrNotFound is returned by Get when no record is stored under the id.
var ErrNotFound = errors.New("backend: record not found")

// Backend kinds accepted by Open.
const (
	KindFile     = "file"
	KindTable    = "table"
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindRedis    = "redis"
	KindS3       = "s3"
)

// Capabilities describes a backend to callers that care whether a put
// survives a process restart.
type Capabilities struct {
	Name    string `json:"name"`
	Durable bool   `json:"durable"`
}

// Backend persists meeting records keyed by id.
type Backend interface {
	// Get returns the stored record or ErrNotFound. Corrupt records surface
	// as codec errors, never as ErrNotFound.
	Get(ctx context.Context, id string) (models.Meeting, error)
	// Put stores m under id, replacing any previous record.
	Put(ctx context.Context, id string, m models.Meeting) error
	Capabilities() Capabilities
	Close() error
}

// Options selects and configures a backend for Open.
type Options struct {
	Kind        string
	DataDir     string
	TableFile   string
	SQLitePath  string
	DatabaseURL string
	Redis       redis.Options
	S3          storage.S3Config
}

// Open builds the backend named by opts.Kind.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Kind {
	case KindFile, "":
		return NewFileBackend(opts.DataDir, logger)
	case KindTable:
		return NewTableBackend(opts.TableFile, logger)
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindSQLite:
		return NewSQLiteBackend(ctx, opts.SQLitePath, logger)
	case KindPostgres:
		pool, err := database.NewPostgresPool(ctx, opts.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresBackend(pool, logger), nil
	case KindRedis:
		client, err := redis.NewClient(ctx, opts.Redis, logger)
		if err != nil {
			return nil, err
		}
		return NewRedisBackend(client, logger), nil
	case KindS3:
		s3, err := storage.NewS3(ctx, opts.S3, logger)
		if err != nil {
			return nil, err
		}
		if err := s3.HeadBucket(ctx); err != nil {
			return nil, err
		}
		logger.Info("s3 backend ready", zap.String("bucket", s3.Bucket()))
		return NewS3Backend(s3, logger), nil
	}
	return nil, fmt.Errorf("backend: unknown kind %q", opts.Kind)
}
