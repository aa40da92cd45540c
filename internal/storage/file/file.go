// Package file stores shared routing state as a JSON document guarded by a
// sibling lock file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mandalnilabja/latchway/internal/storage/models"
)

// Storage implements storage.Storage on a JSON file.
//
// Mutations take an exclusive lock on <path>.lock for the whole
// read-modify-write and replace the document with an atomic rename.
// Reads take a shared lock on the same file.
type Storage struct {
	path     string
	lockPath string
	mu       sync.RWMutex
	closed   bool
}

// New creates a file store at path, creating its directory if needed.
func New(path string) (*Storage, error) {
	if path == "" {
		return nil, errors.New("state file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Storage{
		path:     path,
		lockPath: path + ".lock",
	}, nil
}

// Path returns the state document location.
func (s *Storage) Path() string {
	return s.path
}

// Load reads the state document under a shared lock.
func (s *Storage) Load(ctx context.Context) (*models.RoutingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, models.ErrStorageClosed
	}

	var state *models.RoutingState
	err := s.withLock(false, func() error {
		var err error
		state, err = s.read()
		return err
	})
	return state, err
}

// SetPin makes backend the sticky pin for category.
func (s *Storage) SetPin(ctx context.Context, category, backend string) error {
	return s.update(func(state *models.RoutingState) bool {
		if state.DefaultModels[category] == backend {
			return false
		}
		state.DefaultModels[category] = backend
		return true
	})
}

// ClearPin removes the pin for category if it still names backend.
func (s *Storage) ClearPin(ctx context.Context, category, backend string) (bool, error) {
	removed := false
	err := s.update(func(state *models.RoutingState) bool {
		if cur, ok := state.DefaultModels[category]; ok && cur == backend {
			delete(state.DefaultModels, category)
			removed = true
		}
		return removed
	})
	return removed, err
}

// RecordRequest appends at to the backend's log and prunes old entries.
func (s *Storage) RecordRequest(ctx context.Context, backend string, at time.Time) error {
	return s.update(func(state *models.RoutingState) bool {
		state.RecordRequest(backend, at)
		return true
	})
}

// Close marks the store closed.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// update runs fn against the current document under the exclusive lock and
// persists the result when fn reports a change. A document that cannot be
// decoded is replaced rather than blocking every later write.
func (s *Storage) update(fn func(*models.RoutingState) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrStorageClosed
	}

	return s.withLock(true, func() error {
		state, err := s.read()
		if errors.Is(err, models.ErrCorruptState) {
			state = models.NewRoutingState()
		} else if err != nil {
			return err
		}

		if !fn(state) {
			return nil
		}
		return s.write(state)
	})
}

func (s *Storage) withLock(exclusive bool, fn func() error) error {
	lf, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lf.Close()

	if err := lockFile(lf, exclusive); err != nil {
		return fmt.Errorf("failed to lock state: %w", err)
	}
	defer func() { _ = unlockFile(lf) }()

	return fn()
}

func (s *Storage) read() (*models.RoutingState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewRoutingState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	if len(data) == 0 {
		return models.NewRoutingState(), nil
	}

	state := &models.RoutingState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCorruptState, err)
	}
	state.Normalize()
	return state, nil
}

func (s *Storage) write(state *models.RoutingState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}
