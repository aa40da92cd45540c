package proxy

import (
	"errors"
	"io"
	"net/http"

	"github.com/mandalnilabja/latchway/internal/router"
	"github.com/mandalnilabja/latchway/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/latchway/internal/transport/http/middleware"
	"github.com/mandalnilabja/latchway/internal/types"
)

// Completions routes a chat-completion request and streams the accepted
// backend's response back verbatim: its status, Content-Type and bytes.
func (h *Handlers) Completions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	logger := h.Logger.With("request_id", requestID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		shared.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	payload, err := types.ParsePayload(body)
	if err != nil {
		shared.WriteJSONError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	resp, err := h.Engine.Route(ctx, router.Request{
		Category:   payload.Model(),
		Payload:    payload,
		ClientAuth: r.Header.Get("Authorization"),
		Header:     r.Header,
		RequestID:  requestID,
	})
	if err != nil {
		h.writeRouteError(w, r, err)
		return
	}
	defer resp.Stream.Close()

	h.observePromptTokens(resp.Category, payload)

	if ct := resp.Stream.ContentType(); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set(BackendHeader, resp.Backend)
	w.WriteHeader(resp.Stream.StatusCode)

	flusher, _ := w.(http.Flusher)
	for {
		select {
		case chunk, ok := <-resp.Stream.Chunks():
			if !ok {
				if err := resp.Stream.Err(); err != nil {
					logger.Warn("backend stream ended early", "backend", resp.Backend, "error", err)
				}
				return
			}
			if _, err := w.Write(chunk); err != nil {
				logger.Debug("client write failed", "backend", resp.Backend, "error", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-ctx.Done():
			logger.Debug("client disconnected", "backend", resp.Backend)
			return
		}
	}
}

func (h *Handlers) writeRouteError(w http.ResponseWriter, r *http.Request, err error) {
	var exhausted *router.ExhaustedError
	switch {
	case errors.Is(err, router.ErrMissingCategory):
		shared.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &exhausted):
		shared.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
	case r.Context().Err() != nil:
		// Client is gone; nothing to write.
	default:
		h.Logger.Error("routing failed", "request_id", middleware.GetRequestID(r.Context()), "error", err)
		shared.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}
