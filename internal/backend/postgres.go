package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/meeting-scheduler/backend/internal/codec"
	"github.com/meeting-scheduler/backend/internal/models"
)

// PostgresBackend stores one row per meeting in the meetings table.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresBackend wraps a pool whose schema is already migrated.
func NewPostgresBackend(pool *pgxpool.Pool, logger *zap.Logger) *PostgresBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresBackend{pool: pool, logger: logger}
}

func (b *PostgresBackend) Get(ctx context.Context, id string) (models.Meeting, error) {
	var data string
	err := b.pool.QueryRow(ctx, `SELECT record::text FROM meetings WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Meeting{}, ErrNotFound
	}
	if err != nil {
		return models.Meeting{}, fmt.Errorf("backend: select meeting %s: %w", id, err)
	}
	m, err := codec.Decode([]byte(data))
	if err != nil {
		return models.Meeting{}, fmt.Errorf("backend: record %s: %w", id, err)
	}
	return m, nil
}

func (b *PostgresBackend) Put(ctx context.Context, id string, m models.Meeting) error {
	data, err := codec.Encode(m)
	if err != nil {
		return err
	}
	const q = `INSERT INTO meetings (id, record, created_at, expires_at)
		VALUES ($1, $2::json, $3, $4)
		ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()`
	if _, err := b.pool.Exec(ctx, q, id, string(data), m.CreatedAt, m.ExpiresAt); err != nil {
		return fmt.Errorf("backend: upsert meeting %s: %w", id, err)
	}
	return nil
}

func (b *PostgresBackend) Capabilities() Capabilities {
	return Capabilities{Name: KindPostgres, Durable: true}
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
