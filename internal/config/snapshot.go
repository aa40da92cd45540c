package config

import (
	"slices"
	"time"
)

// DefaultBackendTimeout bounds connecting to a backend and waiting for its
// response headers. Streaming bodies are not bounded by it.
const DefaultBackendTimeout = 2 * time.Second

// DefaultMaxRetryWait caps the total time spent sleeping between rounds.
const DefaultMaxRetryWait = 2 * time.Minute

// Backend is one upstream provider. Immutable once loaded.
type Backend struct {
	Name       string
	URL        string
	APIKey     string
	Categories []string
	Latch      bool
}

// Serves reports whether the backend is configured for the category.
func (b Backend) Serves(category string) bool {
	return slices.Contains(b.Categories, category)
}

// Snapshot is an immutable view of the routing configuration.
// It is safe for concurrent readers.
type Snapshot struct {
	Backends        []Backend
	APIKeys         map[string]string
	DefaultCategory string
	Retries         int
	RetryDelay      time.Duration
	BackendTimeout  time.Duration
	MaxRetryWait    time.Duration
}

// Empty is the snapshot served when no configuration can be read.
func Empty() *Snapshot {
	return &Snapshot{
		APIKeys:        map[string]string{},
		BackendTimeout: DefaultBackendTimeout,
		MaxRetryWait:   DefaultMaxRetryWait,
	}
}

// NewSnapshot converts a decoded config file into a Snapshot.
func NewSnapshot(fc *FileConfig) *Snapshot {
	s := Empty()
	s.DefaultCategory = fc.DefaultCategory
	s.Retries = fc.Retries
	s.RetryDelay = seconds(fc.RetryDelay)
	if fc.BackendTimeout > 0 {
		s.BackendTimeout = seconds(fc.BackendTimeout)
	}
	if fc.MaxRetryWait > 0 {
		s.MaxRetryWait = seconds(fc.MaxRetryWait)
	}
	for k, v := range fc.APIKeys {
		s.APIKeys[k] = v
	}
	for _, m := range fc.Models {
		s.Backends = append(s.Backends, Backend{
			Name:       m.Name,
			URL:        m.URL,
			APIKey:     m.APIKey,
			Categories: slices.Clone(m.Category),
			Latch:      m.Latch,
		})
	}
	return s
}

// Categories returns every category served by at least one backend, in
// first-configured order.
func (s *Snapshot) Categories() []string {
	var out []string
	for _, b := range s.Backends {
		for _, c := range b.Categories {
			if !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	return out
}

// ResolveCategory applies the default category to an empty request.
func (s *Snapshot) ResolveCategory(requested string) string {
	if requested != "" {
		return requested
	}
	return s.DefaultCategory
}

// RequiredKey returns the client bearer token required for a category, or "".
func (s *Snapshot) RequiredKey(category string) string {
	return s.APIKeys[category]
}

// Candidates returns the backends serving category with the given latch
// flag, in configured order.
func (s *Snapshot) Candidates(category string, latch bool) []Backend {
	var out []Backend
	for _, b := range s.Backends {
		if b.Latch == latch && b.Serves(category) {
			out = append(out, b)
		}
	}
	return out
}

// Backend looks up a backend by name.
func (s *Snapshot) Backend(name string) (Backend, bool) {
	for _, b := range s.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return Backend{}, false
}

// PinTarget returns the backend a sticky pin may route to: it must still be
// configured for category and still be latch-eligible.
func (s *Snapshot) PinTarget(category, name string) (Backend, bool) {
	b, ok := s.Backend(name)
	if !ok || !b.Latch || !b.Serves(category) {
		return Backend{}, false
	}
	return b, true
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
