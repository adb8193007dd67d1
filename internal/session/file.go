package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	fileExt      = ".json"
	lockExt      = ".lock"
	lockInterval = 25 * time.Millisecond
)

// FileStore keeps one JSON document per session in a directory. Writers take
// an flock on a per-session lock file, so several processes on one host can
// share the directory. Readers rely on atomic renames.
type FileStore struct {
	dir string
	now func() time.Time
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory %q: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return ErrInvalidID
	}
	path, err := s.path(record.ID)
	if err != nil {
		return err
	}

	return s.withLock(ctx, record.ID, func() error {
		existing, err := s.read(path)
		switch {
		case err == nil && !existing.Expired(s.now()):
			return ErrAlreadyExists
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}
		return s.write(path, record)
	})
}

func (s *FileStore) Get(_ context.Context, id string) (*Record, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	record, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if record.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return record, nil
}

func (s *FileStore) Update(ctx context.Context, id string, update Update) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	return s.withLock(ctx, id, func() error {
		record, err := s.read(path)
		if err != nil {
			return err
		}
		if record.Expired(s.now()) {
			return ErrNotFound
		}
		update.Apply(record)
		return s.write(path, record)
	})
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	return s.withLock(ctx, id, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete session %s: %w", id, err)
		}
		return nil
	})
}

// Purge removes expired session documents and returns how many were removed.
// Lock files left behind by deleted sessions are removed as well.
func (s *FileStore) Purge(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read session directory: %w", err)
	}

	removed := 0
	now := s.now()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(name, lockExt) {
			if err := s.removeOrphanLock(strings.TrimSuffix(name, lockExt)); err != nil {
				return removed, err
			}
			continue
		}
		if !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		path := filepath.Join(s.dir, name)

		err := s.withLock(ctx, id, func() error {
			record, err := s.read(path)
			if err != nil || !record.Expired(now) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
			return nil
		})
		if err != nil {
			return removed, err
		}
	}

	return removed, nil
}

// removeOrphanLock drops the lock file of a session that has no document.
// A lock held by another writer is left alone.
func (s *FileStore) removeOrphanLock(id string) error {
	lockPath := filepath.Join(s.dir, id+lockExt)
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock session %s: %w", id, err)
	}
	if !locked {
		return nil
	}
	defer lock.Unlock()

	if _, err := os.Stat(filepath.Join(s.dir, id+fileExt)); !errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock of session %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) path(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

func (s *FileStore) withLock(ctx context.Context, id string, fn func() error) error {
	lock := flock.New(filepath.Join(s.dir, id+lockExt))
	locked, err := lock.TryLockContext(ctx, lockInterval)
	if err != nil {
		return fmt.Errorf("lock session %s: %w", id, err)
	}
	if !locked {
		return fmt.Errorf("lock session %s: not acquired", id)
	}
	defer lock.Unlock()

	return fn()
}

func (s *FileStore) read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session file %s: %w", filepath.Base(path), err)
	}
	return &record, nil
}

func (s *FileStore) write(path string, record *Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}
