package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/fsnotify/fsnotify"
)

// Provider hands out the routing snapshot for one request.
type Provider interface {
	Snapshot() *Snapshot
}

// Static is a Provider that always returns the same snapshot.
type Static struct {
	Snap *Snapshot
}

// Snapshot returns the fixed snapshot.
func (s Static) Snapshot() *Snapshot {
	return s.Snap
}

// emptyTTL limits how long a failed load is served before retrying the file.
const emptyTTL = time.Second

// Source re-reads the routing config file as it changes.
// Parsed snapshots are cached; file system events and the TTL evict them.
type Source struct {
	path   string
	ttl    time.Duration
	cache  *ristretto.Cache[string, *Snapshot]
	logger *slog.Logger
	mu     sync.Mutex // serializes reloads
}

// NewSource creates a Source for path. A ttl of zero caches until the file
// watcher reports a change.
func NewSource(path string, ttl time.Duration, logger *slog.Logger) (*Source, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Snapshot]{
		NumCounters:        100,
		MaxCost:            1 << 20,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create config cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		path:   filepath.Clean(path),
		ttl:    ttl,
		cache:  cache,
		logger: logger,
	}, nil
}

// Path returns the watched config file.
func (s *Source) Path() string {
	return s.path
}

// Snapshot returns the current routing snapshot. It never returns nil: when
// the file cannot be read or is invalid, an empty snapshot is served.
func (s *Source) Snapshot() *Snapshot {
	if snap, ok := s.cache.Get(s.path); ok {
		return snap
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.cache.Get(s.path); ok {
		return snap
	}

	fc, err := ParseFile(s.path)
	if err != nil {
		s.logger.Warn("config unavailable, serving empty routing table", "path", s.path, "error", err)
		snap := Empty()
		s.store(snap, emptyTTL)
		return snap
	}

	snap := NewSnapshot(fc)
	s.store(snap, s.ttl)
	s.logger.Debug("config loaded", "path", s.path, "backends", len(snap.Backends), "categories", len(snap.Categories()))
	return snap
}

func (s *Source) store(snap *Snapshot, ttl time.Duration) {
	if ttl > 0 {
		s.cache.SetWithTTL(s.path, snap, 1, ttl)
	} else {
		s.cache.Set(s.path, snap, 1)
	}
	s.cache.Wait()
}

// Invalidate drops the cached snapshot so the next request re-reads the file.
func (s *Source) Invalidate() {
	s.cache.Del(s.path)
}

// Watch invalidates the cache whenever the config file changes. The parent
// directory is watched so editors that replace the file are handled.
// Blocks until ctx is cancelled.
func (s *Source) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				s.Invalidate()
				s.logger.Info("config changed, reloading", "path", s.path, "op", event.Op.String())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Close releases the snapshot cache.
func (s *Source) Close() {
	s.cache.Close()
}
