// Package storage provides the shared routing state interface and its
// implementations.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/mandalnilabja/latchway/internal/config"
	"github.com/mandalnilabja/latchway/internal/storage/file"
	"github.com/mandalnilabja/latchway/internal/storage/models"
	"github.com/mandalnilabja/latchway/internal/storage/redis"
	"github.com/mandalnilabja/latchway/internal/storage/sqlite"
)

// Re-export types from models package for convenience
type RoutingState = models.RoutingState

// Re-export constants from models package
const RequestRetention = models.RequestRetention

// Storage persists shared routing state. Every mutating call performs its
// own load, mutate and persist inside one exclusive scope that spans
// processes, so concurrent gateways never interleave partial updates.
type Storage interface {
	// Load returns the full persisted state.
	Load(ctx context.Context) (*models.RoutingState, error)

	// SetPin makes backend the sticky pin for category.
	SetPin(ctx context.Context, category, backend string) error

	// ClearPin removes the pin for category if it still names backend.
	// Reports whether a pin was removed.
	ClearPin(ctx context.Context, category, backend string) (bool, error)

	// RecordRequest appends at to the backend's request log and prunes
	// every log to the retention window.
	RecordRequest(ctx context.Context, backend string, at time.Time) error

	// Close releases the store.
	Close() error
}

// Open creates the store selected by cfg.
func Open(ctx context.Context, cfg config.StateConfig) (Storage, error) {
	switch cfg.Backend {
	case "", "file":
		return file.New(cfg.Path)
	case "sqlite":
		return sqlite.New(cfg.Path)
	case "redis":
		return redis.New(ctx, redis.Config{URL: cfg.RedisURL, KeyPrefix: cfg.KeyPrefix})
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
