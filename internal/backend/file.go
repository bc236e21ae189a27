package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/meeting-scheduler/backend/internal/codec"
	"github.com/meeting-scheduler/backend/internal/models"
)

const (
	recordExt = ".json"
	lockExt   = ".lock"
)

// FileBackend stores every meeting in its own file under dir.
//
// Each record has a sidecar lock file. Readers hold a shared flock on it
// while reading, writers an exclusive one while replacing the record. The
// record itself is replaced by atomic rename so a reader never sees a torn
// write even without the lock.
type FileBackend struct {
	dir    string
	logger *zap.Logger
}

// NewFileBackend creates dir if needed and returns a backend rooted there.
func NewFileBackend(dir string, logger *zap.Logger) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("backend: data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backend: create data dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("file backend ready", zap.String("dir", dir))
	return &FileBackend{dir: dir, logger: logger}, nil
}

func (b *FileBackend) recordPath(id string) string { return filepath.Join(b.dir, id+recordExt) }
func (b *FileBackend) lockPath(id string) string   { return filepath.Join(b.dir, id+lockExt) }

func (b *FileBackend) Get(ctx context.Context, id string) (models.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return models.Meeting{}, err
	}
	if !safeName(id) {
		return models.Meeting{}, ErrNotFound
	}

	// The lock file is created before the first write and never removed,
	// so its absence means the record was never stored.
	lock, err := os.Open(b.lockPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return models.Meeting{}, ErrNotFound
	}
	if err != nil {
		return models.Meeting{}, fmt.Errorf("backend: open lock %s: %w", id, err)
	}
	defer lock.Close()

	if err := lockFile(lock, false); err != nil {
		return models.Meeting{}, fmt.Errorf("backend: shared lock %s: %w", id, err)
	}
	defer func() {
		if err := unlockFile(lock); err != nil {
			b.logger.Warn("release shared lock failed", zap.String("meeting_id", id), zap.Error(err))
		}
	}()

	f, err := os.Open(b.recordPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return models.Meeting{}, ErrNotFound
	}
	if err != nil {
		return models.Meeting{}, fmt.Errorf("backend: open record %s: %w", id, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.Meeting{}, fmt.Errorf("backend: read record %s: %w", id, err)
	}
	m, err := codec.Decode(data)
	if err != nil {
		return models.Meeting{}, fmt.Errorf("backend: record %s: %w", id, err)
	}
	return m, nil
}

func (b *FileBackend) Put(ctx context.Context, id string, m models.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !safeName(id) {
		return fmt.Errorf("backend: invalid record id %q", id)
	}
	data, err := codec.Encode(m)
	if err != nil {
		return err
	}

	lock, err := os.OpenFile(b.lockPath(id), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("backend: open lock %s: %w", id, err)
	}
	defer lock.Close()

	if err := lockFile(lock, true); err != nil {
		return fmt.Errorf("backend: exclusive lock %s: %w", id, err)
	}
	defer func() {
		if err := unlockFile(lock); err != nil {
			b.logger.Warn("release exclusive lock failed", zap.String("meeting_id", id), zap.Error(err))
		}
	}()

	if err := writeFileAtomic(b.recordPath(id), data); err != nil {
		return fmt.Errorf("backend: write record %s: %w", id, err)
	}
	return nil
}

func (b *FileBackend) Capabilities() Capabilities {
	return Capabilities{Name: KindFile, Durable: true}
}

func (b *FileBackend) Close() error { return nil }

// safeName keeps ids from escaping the data directory.
func safeName(id string) bool {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, `/\`+"\x00")
}
