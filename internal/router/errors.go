package router

import (
	"errors"
	"strings"
)

// ErrMissingCategory is returned when a request names no category and no
// default category is configured.
var ErrMissingCategory = errors.New("Model name not provided")

// ExhaustedMessage prefixes the exhaustion error returned to clients.
const ExhaustedMessage = "No available models responded"

// ExhaustedError is returned when the pin, every latch backend and every
// non-latch backend failed in every round. Reasons holds one entry per
// attempt, in attempt order.
type ExhaustedError struct {
	Category string
	Reasons  []string
}

func (e *ExhaustedError) Error() string {
	return ExhaustedMessage + ":\n\n" + strings.Join(e.Reasons, "\n")
}
