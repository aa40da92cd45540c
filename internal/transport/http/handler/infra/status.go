package infra

import (
	"net/http"
	"time"

	"github.com/mandalnilabja/latchway/internal/transport/http/handler/shared"
)

// StatusResponse describes routing configuration and shared state.
type StatusResponse struct {
	Categories []CategoryStatus `json:"categories"`
	Backends   []BackendStatus  `json:"backends"`
}

// CategoryStatus is one category and its current sticky pin.
type CategoryStatus struct {
	Name     string   `json:"name"`
	Pin      string   `json:"pin,omitempty"`
	Backends []string `json:"backends"`
}

// BackendStatus is one backend with its recent successful dispatches.
type BackendStatus struct {
	Name        string   `json:"name"`
	Latch       bool     `json:"latch"`
	Categories  []string `json:"categories"`
	Requests24h int      `json:"requests_24h"`
	Requests7d  int      `json:"requests_7d"`
}

// Status reports pins and per-backend request counts.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	snap := h.Config.Snapshot()
	st, err := h.State.Snapshot(r.Context())
	if err != nil {
		shared.WriteJSONError(w, "routing state unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	now := h.now()
	resp := StatusResponse{
		Categories: []CategoryStatus{},
		Backends:   []BackendStatus{},
	}

	for _, c := range snap.Categories() {
		cs := CategoryStatus{Name: c, Pin: st.DefaultModels[c], Backends: []string{}}
		for _, b := range snap.Backends {
			if b.Serves(c) {
				cs.Backends = append(cs.Backends, b.Name)
			}
		}
		resp.Categories = append(resp.Categories, cs)
	}

	for _, b := range snap.Backends {
		resp.Backends = append(resp.Backends, BackendStatus{
			Name:        b.Name,
			Latch:       b.Latch,
			Categories:  b.Categories,
			Requests24h: st.RequestCount(b.Name, now.Add(-24*time.Hour)),
			Requests7d:  st.RequestCount(b.Name, now.Add(-7*24*time.Hour)),
		})
	}

	shared.WriteJSON(w, resp, http.StatusOK)
}
