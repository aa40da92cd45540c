// Package provider performs single outbound calls to backend providers and
// classifies their responses.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mandalnilabja/latchway/internal/config"
	"github.com/mandalnilabja/latchway/internal/types"
)

// maxErrorBody bounds how much of a non-2xx body is kept for the failure reason.
const maxErrorBody = 64 * 1024

// skipHeaders are client headers never forwarded to a backend.
var skipHeaders = map[string]bool{
	"Accept-Encoding":     true,
	"Authorization":       true,
	"Connection":          true,
	"Content-Length":      true,
	"Host":                true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Call is one request to be sent to a backend.
type Call struct {
	// Payload is the client's request body. It is not modified.
	Payload *types.Payload

	// ClientAuth is the client's Authorization header verbatim.
	ClientAuth string

	// RequiredKey is the category's client key; empty means open access.
	RequiredKey string

	// Header holds the client's request headers to pass through.
	Header http.Header

	// Timeout bounds connecting, waiting for response headers, and waiting
	// for the first body chunk.
	Timeout time.Duration
}

// Invoker sends calls to backends. One Invoker is shared by all requests.
type Invoker struct {
	mu      sync.Mutex
	clients map[time.Duration]*http.Client

	// ChunkSize and QueueSize tune the classifier; zero means default.
	ChunkSize int
	QueueSize int
}

// NewInvoker creates an Invoker.
func NewInvoker() *Invoker {
	return &Invoker{clients: make(map[time.Duration]*http.Client)}
}

// Attempt sends call to backend. On success the returned Stream is live and
// must be closed by the caller.
func (iv *Invoker) Attempt(ctx context.Context, backend config.Backend, call Call) (*Stream, error) {
	if call.RequiredKey != "" && call.ClientAuth != "Bearer "+call.RequiredKey {
		return nil, &AuthRejectedError{Backend: backend.Name}
	}

	body, err := call.Payload.WithModel(backend.Name).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", backend.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Backend: backend.Name, Message: err.Error()}
	}

	// Copy headers (skip hop-by-hop)
	for k, v := range call.Header {
		if skipHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+backend.APIKey)

	timeout := call.Timeout
	if timeout <= 0 {
		timeout = config.DefaultBackendTimeout
	}

	resp, err := iv.client(timeout).Do(req)
	if err != nil {
		return nil, &TransportError{Backend: backend.Name, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{
			Backend: backend.Name,
			Status:  resp.StatusCode,
			Body:    strings.TrimSpace(string(data)),
		}
	}

	return Classify(ctx, resp.Body, ClassifyOptions{
		Backend:    backend.Name,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		ChunkSize:  iv.ChunkSize,
		QueueSize:  iv.QueueSize,

		FirstChunkTimeout: timeout,
	})
}

// client returns the shared client for timeout, creating it on first use.
// DisableCompression keeps streamed bytes identical to what the backend sent.
func (iv *Invoker) client(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = config.DefaultBackendTimeout
	}

	iv.mu.Lock()
	defer iv.mu.Unlock()

	if c, ok := iv.clients[timeout]; ok {
		return c
	}
	c := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			DisableCompression:    true,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
		},
	}
	iv.clients[timeout] = c
	return c
}

// CloseIdleConnections releases pooled backend connections.
func (iv *Invoker) CloseIdleConnections() {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	for _, c := range iv.clients {
		c.CloseIdleConnections()
	}
}
