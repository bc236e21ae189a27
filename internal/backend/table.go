package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/meeting-scheduler/backend/internal/codec"
	"github.com/meeting-scheduler/backend/internal/models"
)

// TableBackend keeps every meeting in one JSON file mapping id to record.
// A single mutex covers each get and each read-modify-write of the table,
// so puts on different ids cannot lose each other's updates.
type TableBackend struct {
	mu     sync.Mutex
	path   string
	table  map[string]models.Meeting
	logger *zap.Logger
}

// NewTableBackend loads the table at path, creating an empty one if absent.
func NewTableBackend(path string, logger *zap.Logger) (*TableBackend, error) {
	if path == "" {
		return nil, errors.New("backend: table file is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("backend: create table dir: %w", err)
	}

	b := &TableBackend{path: path, logger: logger}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		b.table = make(map[string]models.Meeting)
		if err := b.persist(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("backend: read table: %w", err)
	default:
		table, err := codec.DecodeTable(data)
		if err != nil {
			return nil, fmt.Errorf("backend: load table %s: %w", path, err)
		}
		b.table = table
	}
	logger.Info("table backend ready", zap.String("path", path), zap.Int("meetings", len(b.table)))
	return b, nil
}

func (b *TableBackend) Get(ctx context.Context, id string) (models.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return models.Meeting{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.table[id]
	if !ok {
		return models.Meeting{}, ErrNotFound
	}
	return m.Clone(), nil
}

func (b *TableBackend) Put(ctx context.Context, id string, m models.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, existed := b.table[id]
	b.table[id] = m.Clone()
	if err := b.persist(); err != nil {
		if existed {
			b.table[id] = prev
		} else {
			delete(b.table, id)
		}
		return err
	}
	return nil
}

// persist writes the whole table; callers hold mu.
func (b *TableBackend) persist() error {
	data, err := codec.EncodeTable(b.table)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(b.path, data); err != nil {
		return fmt.Errorf("backend: write table: %w", err)
	}
	return nil
}

func (b *TableBackend) Capabilities() Capabilities {
	return Capabilities{Name: KindTable, Durable: true}
}

func (b *TableBackend) Close() error { return nil }
