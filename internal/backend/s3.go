package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/meeting-scheduler/backend/internal/codec"
	"github.com/meeting-scheduler/backend/internal/models"
	"github.com/meeting-scheduler/backend/pkg/storage"
)

// S3Backend stores one object per meeting under meetings/{id}.json.
type S3Backend struct {
	s3     *storage.S3
	logger *zap.Logger
}

// NewS3Backend wraps a configured S3 client.
func NewS3Backend(s3 *storage.S3, logger *zap.Logger) *S3Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Backend{s3: s3, logger: logger}
}

func (b *S3Backend) Get(ctx context.Context, id string) (models.Meeting, error) {
	if !safeName(id) {
		return models.Meeting{}, ErrNotFound
	}
	data, err := b.s3.GetObject(ctx, storage.MeetingKey(id))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return models.Meeting{}, ErrNotFound
	}
	if err != nil {
		return models.Meeting{}, fmt.Errorf("backend: s3 get %s: %w", id, err)
	}
	m, err := codec.Decode(data)
	if err != nil {
		return models.Meeting{}, fmt.Errorf("backend: record %s: %w", id, err)
	}
	return m, nil
}

func (b *S3Backend) Put(ctx context.Context, id string, m models.Meeting) error {
	if !safeName(id) {
		return fmt.Errorf("backend: invalid record id %q", id)
	}
	data, err := codec.Encode(m)
	if err != nil {
		return err
	}
	if err := b.s3.PutObject(ctx, storage.MeetingKey(id), data); err != nil {
		return fmt.Errorf("backend: s3 put %s: %w", id, err)
	}
	return nil
}

func (b *S3Backend) Capabilities() Capabilities {
	return Capabilities{Name: KindS3, Durable: true}
}

func (b *S3Backend) Close() error { return nil }
