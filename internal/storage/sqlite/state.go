package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mandalnilabja/latchway/internal/storage/models"
)

// Load reads all pins and retained request timestamps.
func (s *Storage) Load(ctx context.Context) (*models.RoutingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, models.ErrStorageClosed
	}

	state := models.NewRoutingState()

	rows, err := s.db.QueryContext(ctx, "SELECT category, backend FROM sticky_pins")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var category, backend string
		if err := rows.Scan(&category, &backend); err != nil {
			return nil, err
		}
		state.DefaultModels[category] = backend
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tsRows, err := s.db.QueryContext(ctx,
		"SELECT backend, ts FROM request_timestamps ORDER BY backend, ts")
	if err != nil {
		return nil, err
	}
	defer tsRows.Close()

	for tsRows.Next() {
		var backend string
		var ts int64
		if err := tsRows.Scan(&backend, &ts); err != nil {
			return nil, err
		}
		state.RequestTimestamps[backend] = append(state.RequestTimestamps[backend], ts)
	}

	return state, tsRows.Err()
}

// SetPin upserts the sticky pin for category.
func (s *Storage) SetPin(ctx context.Context, category, backend string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrStorageClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sticky_pins (category, backend, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(category) DO UPDATE SET
			backend = excluded.backend,
			updated_at = CURRENT_TIMESTAMP
	`, category, backend)
	return err
}

// ClearPin deletes the pin for category only if it still names backend.
func (s *Storage) ClearPin(ctx context.Context, category, backend string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, models.ErrStorageClosed
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM sticky_pins WHERE category = ? AND backend = ?", category, backend)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordRequest inserts a timestamp and prunes expired ones in one transaction.
func (s *Storage) RecordRequest(ctx context.Context, backend string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrStorageClosed
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO request_timestamps (backend, ts) VALUES (?, ?)", backend, at.Unix()); err != nil {
			return fmt.Errorf("insert request timestamp: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM request_timestamps WHERE ts < ?", models.RetentionCutoff(at)); err != nil {
			return fmt.Errorf("prune request timestamps: %w", err)
		}
		return nil
	})
}

func (s *Storage) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
