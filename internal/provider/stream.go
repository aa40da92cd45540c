package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mandalnilabja/latchway/internal/types"
)

const (
	defaultChunkSize = 32 * 1024
	defaultQueueSize = 64
)

// ClassifyOptions describes the response being classified.
type ClassifyOptions struct {
	// Backend names the source in failure reasons.
	Backend string

	// StatusCode and Header are carried onto the accepted Stream.
	StatusCode int
	Header     http.Header

	// ChunkSize bounds a single read from the body.
	ChunkSize int

	// QueueSize bounds the chunks buffered ahead of the consumer.
	QueueSize int

	// FirstChunkTimeout bounds the wait for the first chunk; zero waits
	// until ctx ends.
	FirstChunkTimeout time.Duration
}

// Stream is an accepted backend response. Chunks arrive in backend order,
// unmodified, starting with the chunk that was classified.
type Stream struct {
	StatusCode int
	Header     http.Header

	chunks    chan []byte
	body      io.ReadCloser
	cancel    context.CancelFunc
	closeOnce sync.Once
	err       error
}

// Chunks returns the delivery queue. It is closed at end of stream.
func (s *Stream) Chunks() <-chan []byte {
	return s.chunks
}

// ContentType returns the backend's Content-Type header.
func (s *Stream) ContentType() string {
	if s.Header == nil {
		return ""
	}
	return s.Header.Get("Content-Type")
}

// Err reports why the stream ended early. Valid once Chunks is closed; nil
// after a clean EOF.
func (s *Stream) Err() error {
	return s.err
}

// Close stops the reader goroutine and releases the backend connection.
// Safe to call more than once and concurrently with reads from Chunks.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}

// Classify starts reading body in the background and blocks until the first
// chunk has been judged. A first chunk carrying a non-empty error.message is
// rejected with *StreamRejectedError; anything else, including text that is
// not JSON, is accepted. A body that fails or ends before its first chunk
// yields *TransportError, as does one that sends nothing within
// FirstChunkTimeout.
//
// Only the first chunk is inspected. A provider that fails after streaming
// some output is passed through as is.
func Classify(ctx context.Context, body io.ReadCloser, opts ClassifyOptions) (*Stream, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	workerCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		StatusCode: opts.StatusCode,
		Header:     opts.Header,
		chunks:     make(chan []byte, opts.QueueSize),
		body:       body,
		cancel:     cancel,
	}

	verdict := make(chan error, 1)
	go s.run(workerCtx, opts, verdict)

	var deadline <-chan time.Time
	if opts.FirstChunkTimeout > 0 {
		timer := time.NewTimer(opts.FirstChunkTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case err := <-verdict:
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		_ = s.Close()
		return nil, &TransportError{Backend: opts.Backend, Message: ctx.Err().Error()}
	case <-deadline:
		_ = s.Close()
		return nil, &TransportError{Backend: opts.Backend, Message: "no data within " + opts.FirstChunkTimeout.String()}
	}
}

func (s *Stream) run(ctx context.Context, opts ClassifyOptions, verdict chan<- error) {
	defer close(s.chunks)

	buf := make([]byte, opts.ChunkSize)
	first := true
	for {
		n, readErr := s.body.Read(buf)
		if n > 0 {
			chunk := bytes.Clone(buf[:n])
			if first {
				first = false
				if msg := inBandError(chunk); msg != "" {
					verdict <- &StreamRejectedError{Backend: opts.Backend, Message: msg}
					return
				}
				verdict <- nil
			}
			select {
			case s.chunks <- chunk:
			case <-ctx.Done():
				s.err = ctx.Err()
				return
			}
		}
		if readErr == nil {
			continue
		}

		if first {
			msg := readErr.Error()
			if errors.Is(readErr, io.EOF) {
				msg = "stream ended before any data"
			}
			verdict <- &TransportError{Backend: opts.Backend, Message: msg}
			return
		}
		if !errors.Is(readErr, io.EOF) {
			if ctx.Err() != nil {
				s.err = ctx.Err()
			} else {
				s.err = readErr
			}
		}
		return
	}
}

// inBandError returns the provider error message carried by chunk, or "".
func inBandError(chunk []byte) string {
	data := types.FirstSSEData(chunk)
	if len(data) == 0 || data[0] != '{' {
		return ""
	}
	var frame types.ProviderError
	if err := json.Unmarshal(data, &frame); err != nil {
		return ""
	}
	if !frame.HasMessage() {
		return ""
	}
	return frame.Error.Message
}
