package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/meeting-scheduler/backend/internal/codec"
	"github.com/meeting-scheduler/backend/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meetings (
    id         TEXT PRIMARY KEY,
    record     TEXT NOT NULL,
    created_at TEXT NOT NULL,
    expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_meetings_expires_at ON meetings (expires_at);
`

// SQLiteBackend keeps all meetings in one SQLite database file. Writes go
// through a single connection so the table has exactly one writer.
type SQLiteBackend struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLiteBackend opens (or creates) the database at path and ensures the schema.
func NewSQLiteBackend(ctx context.Context, path string, logger *zap.Logger) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("backend: sqlite path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("backend: create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("backend: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("backend: sqlite schema: %w", err)
	}
	logger.Info("sqlite backend ready", zap.String("path", path))
	return &SQLiteBackend{db: db, path: path, logger: logger}, nil
}

func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "synchronous(FULL)")
	if path == ":memory:" {
		return "file::memory:?" + q.Encode()
	}
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

func (b *SQLiteBackend) Get(ctx context.Context, id string) (models.Meeting, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT record FROM meetings WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
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

func (b *SQLiteBackend) Put(ctx context.Context, id string, m models.Meeting) error {
	data, err := codec.Encode(m)
	if err != nil {
		return err
	}
	const q = `INSERT INTO meetings (id, record, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET record = excluded.record`
	_, err = b.db.ExecContext(ctx, q, id, string(data),
		m.CreatedAt.UTC().Format(time.RFC3339Nano), m.ExpiresAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("backend: upsert meeting %s: %w", id, err)
	}
	return nil
}

func (b *SQLiteBackend) Capabilities() Capabilities {
	return Capabilities{Name: KindSQLite, Durable: b.path != ":memory:"}
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }
