package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/meeting-scheduler/backend/internal/codec"
	"github.com/meeting-scheduler/backend/internal/models"
	"github.com/meeting-scheduler/backend/pkg/redis"
)

const redisKeyPrefix = "meeting:"

// RedisBackend stores each meeting under its own key. Records carry no
// TTL; expiry stays a read-time decision of the store.
type RedisBackend struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBackend wraps a connected client.
func NewRedisBackend(client *redis.Client, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{client: client, logger: logger}
}

func (b *RedisBackend) Get(ctx context.Context, id string) (models.Meeting, error) {
	data, err := b.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if redis.IsNil(err) {
		return models.Meeting{}, ErrNotFound
	}
	if err != nil {
		return models.Meeting{}, fmt.Errorf("backend: redis get %s: %w", id, err)
	}
	m, err := codec.Decode(data)
	if err != nil {
		return models.Meeting{}, fmt.Errorf("backend: record %s: %w", id, err)
	}
	return m, nil
}

func (b *RedisBackend) Put(ctx context.Context, id string, m models.Meeting) error {
	data, err := codec.Encode(m)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, redisKeyPrefix+id, data, 0).Err(); err != nil {
		return fmt.Errorf("backend: redis set %s: %w", id, err)
	}
	return nil
}

// Capabilities reports the backend as volatile: an acknowledged SET is only
// as durable as the server's persistence settings.
func (b *RedisBackend) Capabilities() Capabilities {
	return Capabilities{Name: KindRedis, Durable: false}
}

func (b *RedisBackend) Close() error { return b.client.Close() }
