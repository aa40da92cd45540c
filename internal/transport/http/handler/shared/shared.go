// Package shared holds response helpers used by every handler group.
package shared

import (
	"encoding/json"
	"net/http"

	"github.com/mandalnilabja/latchway/internal/types"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteJSONError writes the gateway's {"error": message} body.
func WriteJSONError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, types.GatewayError{Error: message}, status)
}
