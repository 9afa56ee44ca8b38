package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/ritzau/kube-playground/pkg/logging"
)

const (
	snapshotExt  = ".json"
	lockFileName = ".lock"
	lockRetry    = 50 * time.Millisecond
	lockTimeout  = 10 * time.Second
)

// FileStore keeps one JSON file per snapshot in a directory. Writers in
// different processes are serialized with a lock file next to the
// snapshots.
type FileStore struct {
	dir  string
	lock *flock.Flock
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir, lock: flock.New(filepath.Join(dir, lockFileName))}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+snapshotExt)
}

func (s *FileStore) withLock(ctx context.Context, shared bool, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = s.lock.TryRLockContext(ctx, lockRetry)
	} else {
		locked, err = s.lock.TryLockContext(ctx, lockRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to lock store: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock store %s", s.dir)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			logging.Warn("failed to unlock store", "dir", s.dir, "error", err)
		}
	}()
	return fn()
}

// Save writes data under key, replacing any previous snapshot atomically.
func (s *FileStore) Save(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.withLock(ctx, false, func() error {
		tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
		if err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		logging.Debug("snapshot saved", "key", key, "bytes", len(data))
		return nil
	})
}

// Load reads the snapshot stored under key.
func (s *FileStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	var data []byte
	err := s.withLock(ctx, true, func() error {
		var err error
		data, err = os.ReadFile(s.path(key))
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return err
	})
	return data, err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.withLock(ctx, false, func() error {
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
		return nil
	})
}

// List returns the stored keys.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.withLock(ctx, true, func() error {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			return fmt.Errorf("failed to read store directory: %w", err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, snapshotExt) {
				continue
			}
			keys = append(keys, strings.TrimSuffix(name, snapshotExt))
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

func (s *FileStore) Close() error {
	return s.lock.Close()
}
