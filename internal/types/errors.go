package types

import (
	"encoding/json"
	"net/http"
)

// GatewayError is the error body returned by the gateway itself.
// Backend error bodies are never rewritten into this shape.
type GatewayError struct {
	Error string `json:"error"`
}

// ProviderError is the in-band error frame some providers emit as the first
// event of a 200 stream.
type ProviderError struct {
	Error *ProviderErrorDetail `json:"error"`
}

// ProviderErrorDetail carries the provider's error description.
type ProviderErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

// HasMessage reports whether the frame carries a non-empty error message.
func (e *ProviderError) HasMessage() bool {
	return e != nil && e.Error != nil && e.Error.Message != ""
}

// WriteError writes a gateway error with the given status code.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(GatewayError{Error: message})
}
