// Package redis stores shared routing state in Redis, for gateways that run
// on more than one host.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mandalnilabja/latchway/internal/storage/models"
)

// maxTxRetries bounds optimistic-lock retries for ClearPin.
const maxTxRetries = 5

// Config holds Redis connection configuration.
type Config struct {
	URL       string
	KeyPrefix string
}

// Storage implements storage.Storage on Redis.
//
// Pins live in one hash; each backend's timestamps live in a sorted set
// scored by epoch seconds, and a set indexes the backends seen.
type Storage struct {
	rdb    *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewFromClient(rdb, cfg.KeyPrefix), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(rdb *redis.Client, prefix string) *Storage {
	if prefix == "" {
		prefix = "latchway"
	}
	return &Storage{rdb: rdb, prefix: prefix}
}

// Key helpers
func (s *Storage) pinsKey() string {
	return s.prefix + ":default_models"
}

func (s *Storage) backendsKey() string {
	return s.prefix + ":backends"
}

func (s *Storage) timestampsKey(backend string) string {
	return s.prefix + ":request_timestamps:" + backend
}

// Load reads pins and every backend's timestamps.
func (s *Storage) Load(ctx context.Context) (*models.RoutingState, error) {
	state := models.NewRoutingState()

	pins, err := s.rdb.HGetAll(ctx, s.pinsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall pins: %w", err)
	}
	for category, backend := range pins {
		state.DefaultModels[category] = backend
	}

	backends, err := s.rdb.SMembers(ctx, s.backendsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers backends: %w", err)
	}
	for _, backend := range backends {
		entries, err := s.rdb.ZRangeWithScores(ctx, s.timestampsKey(backend), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("zrange %s: %w", backend, err)
		}
		if len(entries) == 0 {
			continue
		}
		ts := make([]int64, 0, len(entries))
		for _, z := range entries {
			ts = append(ts, int64(z.Score))
		}
		state.RequestTimestamps[backend] = ts
	}

	return state, nil
}

// SetPin makes backend the sticky pin for category.
func (s *Storage) SetPin(ctx context.Context, category, backend string) error {
	return s.rdb.HSet(ctx, s.pinsKey(), category, backend).Err()
}

// ClearPin removes the pin for category if it still names backend. The
// compare and delete run under WATCH so a concurrent re-pin is never lost.
func (s *Storage) ClearPin(ctx context.Context, category, backend string) (bool, error) {
	removed := false
	txf := func(tx *redis.Tx) error {
		removed = false
		cur, err := tx.HGet(ctx, s.pinsKey(), category).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if cur != backend {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, s.pinsKey(), category)
			return nil
		})
		if err == nil {
			removed = true
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, s.pinsKey())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return removed, err
	}
	return false, fmt.Errorf("clear pin %s: %w", category, redis.TxFailedErr)
}

// RecordRequest adds a timestamp and prunes every backend's log.
func (s *Storage) RecordRequest(ctx context.Context, backend string, at time.Time) error {
	backends, err := s.rdb.SMembers(ctx, s.backendsKey()).Result()
	if err != nil {
		return fmt.Errorf("smembers backends: %w", err)
	}

	maxScore := "(" + strconv.FormatInt(models.RetentionCutoff(at), 10)
	member := strconv.FormatInt(at.UnixNano(), 10) + "-" + uuid.NewString()[:8]

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.backendsKey(), backend)
		pipe.ZAdd(ctx, s.timestampsKey(backend), redis.Z{Score: float64(at.Unix()), Member: member})
		pipe.ZRemRangeByScore(ctx, s.timestampsKey(backend), "-inf", maxScore)
		for _, other := range backends {
			if other != backend {
				pipe.ZRemRangeByScore(ctx, s.timestampsKey(other), "-inf", maxScore)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *Storage) Close() error {
	return s.rdb.Close()
}
