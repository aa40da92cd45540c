package models

import (
	"sort"
	"time"
)

// RequestRetention is how long successful-dispatch timestamps are kept.
const RequestRetention = 7 * 24 * time.Hour

// RoutingState is the persisted routing memory shared by all gateway
// instances. The JSON shape is the on-disk format of the file store.
type RoutingState struct {
	// DefaultModels maps a category to its sticky-pinned backend name.
	DefaultModels map[string]string `json:"default_models"`

	// RequestTimestamps maps a backend to its successful-dispatch times
	// in epoch seconds, oldest first.
	RequestTimestamps map[string][]int64 `json:"request_timestamps"`
}

// NewRoutingState returns an empty state with initialized maps.
func NewRoutingState() *RoutingState {
	return &RoutingState{
		DefaultModels:     make(map[string]string),
		RequestTimestamps: make(map[string][]int64),
	}
}

// Normalize replaces nil maps left by decoding with empty ones.
func (s *RoutingState) Normalize() {
	if s.DefaultModels == nil {
		s.DefaultModels = make(map[string]string)
	}
	if s.RequestTimestamps == nil {
		s.RequestTimestamps = make(map[string][]int64)
	}
}

// RecordRequest appends at to the backend's log, then prunes every backend's
// log to the retention window.
func (s *RoutingState) RecordRequest(backend string, at time.Time) {
	s.RequestTimestamps[backend] = append(s.RequestTimestamps[backend], at.Unix())
	s.Prune(at)
}

// Prune drops timestamps older than RequestRetention relative to now, and
// backends left with no timestamps.
func (s *RoutingState) Prune(now time.Time) {
	cutoff := RetentionCutoff(now)
	for backend, ts := range s.RequestTimestamps {
		kept := PruneTimestamps(ts, cutoff)
		if len(kept) == 0 {
			delete(s.RequestTimestamps, backend)
			continue
		}
		s.RequestTimestamps[backend] = kept
	}
}

// RequestCount counts the backend's timestamps at or after since.
func (s *RoutingState) RequestCount(backend string, since time.Time) int {
	n := 0
	for _, ts := range s.RequestTimestamps[backend] {
		if ts >= since.Unix() {
			n++
		}
	}
	return n
}

// RetentionCutoff is the oldest epoch second still retained at now.
func RetentionCutoff(now time.Time) int64 {
	return now.Add(-RequestRetention).Unix()
}

// PruneTimestamps returns the timestamps >= cutoff, sorted ascending.
func PruneTimestamps(ts []int64, cutoff int64) []int64 {
	kept := make([]int64, 0, len(ts))
	for _, t := range ts {
		if t >= cutoff {
			kept = append(kept, t)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i] < kept[j] })
	return kept
}
