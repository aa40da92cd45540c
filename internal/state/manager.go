// Package state owns the gateway's shared routing memory: sticky pins per
// category and the per-backend request log.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/mandalnilabja/latchway/internal/storage"
)

// Manager serializes this process's access to the shared store. The store
// provides cross-process exclusion; the mutex keeps concurrent requests in
// one process from interleaving their store calls.
type Manager struct {
	store storage.Storage
	mu    sync.Mutex
	now   func() time.Time
}

// NewManager creates a Manager over store.
func NewManager(store storage.Storage) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Pin returns the sticky-pinned backend for category, or "" if none.
func (m *Manager) Pin(ctx context.Context, category string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.Load(ctx)
	if err != nil {
		return "", err
	}
	return st.DefaultModels[category], nil
}

// SetPin records backend as the sticky pin for category.
func (m *Manager) SetPin(ctx context.Context, category, backend string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.SetPin(ctx, category, backend)
}

// ClearPin removes the pin for category if it still names backend.
func (m *Manager) ClearPin(ctx context.Context, category, backend string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ClearPin(ctx, category, backend)
}

// RecordRequest logs a successful dispatch to backend at the current time.
func (m *Manager) RecordRequest(ctx context.Context, backend string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.RecordRequest(ctx, backend, m.now())
}

// Snapshot returns the persisted state with expired timestamps filtered out.
func (m *Manager) Snapshot(ctx context.Context) (*storage.RoutingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	st.Prune(m.now())
	return st, nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
