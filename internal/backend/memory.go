package backend

import (
	"context"
	"sync"

	"github.com/meeting-scheduler/backend/internal/codec"
	"github.com/meeting-scheduler/backend/internal/models"
)

// MemoryBackend keeps encoded records in a process-wide table. Nothing
// survives a restart.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryBackend creates an empty volatile backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(ctx context.Context, id string) (models.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return models.Meeting{}, err
	}
	b.mu.RLock()
	data, ok := b.records[id]
	b.mu.RUnlock()
	if !ok {
		return models.Meeting{}, ErrNotFound
	}
	return codec.Decode(data)
}

func (b *MemoryBackend) Put(ctx context.Context, id string, m models.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := codec.Encode(m)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.records[id] = data
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Capabilities() Capabilities {
	return Capabilities{Name: KindMemory, Durable: false}
}

func (b *MemoryBackend) Close() error { return nil }
