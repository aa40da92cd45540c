package provider

import "fmt"

// Per-backend failures. Each one disqualifies a single backend for a single
// attempt; the router collects their messages as failure reasons.

// AuthRejectedError is returned when the client's bearer token does not match
// the key the category requires. No outbound call is made.
type AuthRejectedError struct {
	Backend string
}

func (e *AuthRejectedError) Error() string {
	return fmt.Sprintf("%s: API key invalid", e.Backend)
}

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	Backend string
	Status  int
	Body    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Backend, e.Status, e.Body)
}

// TransportError covers connection failures, timeouts and streams that end
// before delivering any data.
type TransportError struct {
	Backend string
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %s", e.Backend, e.Message)
}

// StreamRejectedError is a 2xx response whose first chunk carried an in-band
// provider error.
type StreamRejectedError struct {
	Backend string
	Message string
}

func (e *StreamRejectedError) Error() string {
	return fmt.Sprintf("%s: provider error: %s", e.Backend, e.Message)
}
