package router

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandalnilabja/latchway/internal/config"
	"github.com/mandalnilabja/latchway/internal/metrics"
	"github.com/mandalnilabja/latchway/internal/provider"
	"github.com/mandalnilabja/latchway/internal/state"
	"github.com/mandalnilabja/latchway/internal/storage/file"
	"github.com/mandalnilabja/latchway/internal/types"
)

// result is one scripted backend answer: an error, or a 200 body.
type result struct {
	body string
	err  error
}

// fakeInvoker answers from a per-backend script. The last entry repeats.
type fakeInvoker struct {
	mu      sync.Mutex
	scripts map[string][]result
	calls   []string
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{scripts: make(map[string][]result)}
}

func (f *fakeInvoker) on(backend string, results ...result) *fakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[backend] = results
	return f
}

func (f *fakeInvoker) Attempt(ctx context.Context, b config.Backend, call provider.Call) (*provider.Stream, error) {
	f.mu.Lock()
	f.calls = append(f.calls, b.Name)
	script := f.scripts[b.Name]
	r := result{err: &provider.TransportError{Backend: b.Name, Message: "connection refused"}}
	if len(script) > 0 {
		r = script[0]
		if len(script) > 1 {
			f.scripts[b.Name] = script[1:]
		}
	}
	f.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	return provider.Classify(ctx, io.NopCloser(strings.NewReader(r.body)), provider.ClassifyOptions{
		Backend:    b.Name,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/plain"}},
	})
}

func (f *fakeInvoker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	f.calls = nil
	return out
}

func ok(body string) result { return result{body: body} }

func fail(backend string) result {
	return result{err: &provider.HTTPError{Backend: backend, Status: 503, Body: "unavailable"}}
}

func newState(t *testing.T) *state.Manager {
	t.Helper()
	store, err := file.New(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	m := state.NewManager(store)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func request(t *testing.T, category string) Request {
	t.Helper()
	body := `{"messages":[{"role":"user","content":"hi"}]}`
	if category != "" {
		body = `{"model":"` + category + `","messages":[{"role":"user","content":"hi"}]}`
	}
	p, err := types.ParsePayload([]byte(body))
	require.NoError(t, err)
	return Request{Category: p.Model(), Payload: p}
}

func readAll(t *testing.T, resp *Response) string {
	t.Helper()
	defer resp.Stream.Close()
	var out bytes.Buffer
	for chunk := range resp.Stream.Chunks() {
		out.Write(chunk)
	}
	require.NoError(t, resp.Stream.Err())
	return out.String()
}

func snapshot(retries int, backends ...config.Backend) *config.Snapshot {
	s := config.Empty()
	s.Backends = backends
	s.Retries = retries
	return s
}

func backend(name string, latch bool, categories ...string) config.Backend {
	if len(categories) == 0 {
		categories = []string{"free"}
	}
	return config.Backend{Name: name, URL: "http://" + strings.ToLower(name), Categories: categories, Latch: latch}
}

func TestRoute_LatchFirstPassthrough(t *testing.T) {
	inv := newFakeInvoker().on("A", ok("Hello, world"))
	snap := snapshot(0, backend("A", true), backend("B", false))
	e := New(config.Static{Snap: snap}, inv, newState(t), WithLogger(quietLogger()))

	resp, err := e.Route(context.Background(), request(t, "free"))
	require.NoError(t, err)

	assert.Equal(t, "A", resp.Backend)
	assert.Equal(t, "Hello, world", readAll(t, resp))
	assert.Equal(t, []string{"A"}, inv.Calls())
}

func TestRoute_StickyPinLaw(t *testing.T) {
	ctx := context.Background()
	st := newState(t)
	inv := newFakeInvoker().
		on("B", fail("B"), ok("from B")).
		on("A", ok("from A"), ok("from A"), fail("A"))
	snap := snapshot(0, backend("B", true), backend("A", true))
	e := New(config.Static{Snap: snap}, inv, st, WithLogger(quietLogger()))

	// B fails, A succeeds and is pinned.
	resp, err := e.Route(ctx, request(t, "free"))
	require.NoError(t, err)
	assert.Equal(t, "from A", readAll(t, resp))
	assert.Equal(t, []string{"B", "A"}, inv.Calls())

	pin, err := st.Pin(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, "A", pin)

	// A is tried first although B is configured first.
	resp, err = e.Route(ctx, request(t, "free"))
	require.NoError(t, err)
	assert.Equal(t, "from A", readAll(t, resp))
	assert.Equal(t, []string{"A"}, inv.Calls())

	// A fails: the pin is cleared and the latch tier runs in config order.
	resp, err = e.Route(ctx, request(t, "free"))
	require.NoError(t, err)
	assert.Equal(t, "from B", readAll(t, resp))
	assert.Equal(t, []string{"A", "B"}, inv.Calls())

	pin, err = st.Pin(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, "B", pin)

	// The next request does not try A before B.
	resp, err = e.Route(ctx, request(t, "free"))
	require.NoError(t, err)
	readAll(t, resp)
	assert.Equal(t, []string{"B"}, inv.Calls())
}

func TestRoute_NonLatchWinDoesNotPin(t *testing.T) {
	ctx := context.Background()
	st := newState(t)
	inv := newFakeInvoker().on("A", fail("A")).on("B", ok("plain"))
	snap := snapshot(0, backend("A", true), backend("B", false))
	e := New(config.Static{Snap: snap}, inv, st, WithLogger(quietLogger()))

	resp, err := e.Route(ctx, request(t, "free"))
	require.NoError(t, err)
	assert.Equal(t, "plain", readAll(t, resp))

	pin, err := st.Pin(ctx, "free")
	require.NoError(t, err)
	assert.Empty(t, pin)

	// The dispatch is still logged.
	snapState, err := st.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapState.RequestTimestamps["B"], 1)
	assert.NotContains(t, snapState.RequestTimestamps, "A")
}

func TestRoute_InBandErrorSkipsBackend(t *testing.T) {
	inv := newFakeInvoker().
		on("A", ok(`{"error":{"message":"overloaded"}}`)).
		on("B", ok("Hello"))
	snap := snapshot(0, backend("A", true), backend("B", true))
	e := New(config.Static{Snap: snap}, inv, newState(t), WithLogger(quietLogger()))

	resp, err := e.Route(context.Background(), request(t, "free"))
	require.NoError(t, err)
	assert.Equal(t, "B", resp.Backend)
	assert.Equal(t, "Hello", readAll(t, resp))
	assert.Equal(t, []string{"A", "B"}, inv.Calls())
}

func TestRoute_RetryBound(t *testing.T) {
	const delay = 250 * time.Millisecond

	var sleeps []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	inv := newFakeInvoker().on("A", fail("A")).on("B", fail("B"))
	snap := snapshot(2, backend("A", true), backend("B", false))
	snap.RetryDelay = delay

	m := metrics.New()
	e := New(config.Static{Snap: snap}, inv, newState(t),
		WithLogger(quietLogger()), WithSleep(sleep), WithMetrics(m))

	_, err := e.Route(context.Background(), request(t, "free"))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, []time.Duration{delay, delay}, sleeps)
	assert.Len(t, exhausted.Reasons, 6)
	assert.Equal(t, []string{"A", "B", "A", "B", "A", "B"}, inv.Calls())
	assert.True(t, strings.HasPrefix(err.Error(), "No available models responded:\n\n"))
	assert.Contains(t, exhausted.Reasons[0], "A: HTTP 503")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exhausted.WithLabelValues("free")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetrySleeps.WithLabelValues("free")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Attempts.WithLabelValues("free", "A", metrics.OutcomeHTTPError)))
}

func TestRoute_RetryWaitIsCapped(t *testing.T) {
	var total time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		total += d
		return nil
	}

	inv := newFakeInvoker()
	snap := snapshot(5, backend("A", false))
	snap.RetryDelay = time.Second
	snap.MaxRetryWait = 2500 * time.Millisecond

	e := New(config.Static{Snap: snap}, inv, newState(t), WithLogger(quietLogger()), WithSleep(sleep))
	_, err := e.Route(context.Background(), request(t, "free"))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2500*time.Millisecond, total)
	assert.Len(t, exhausted.Reasons, 6, "rounds continue after the wait budget is spent")
}

func TestRoute_RetrySleepObservesCancellation(t *testing.T) {
	inv := newFakeInvoker()
	snap := snapshot(1, backend("A", false))
	snap.RetryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	e := New(config.Static{Snap: snap}, inv, newState(t), WithLogger(quietLogger()))
	start := time.Now()
	_, err := e.Route(ctx, request(t, "free"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRoute_MissingCategory(t *testing.T) {
	inv := newFakeInvoker().on("A", ok("default"))
	snap := snapshot(0, backend("A", false))
	e := New(config.Static{Snap: snap}, inv, newState(t), WithLogger(quietLogger()))

	_, err := e.Route(context.Background(), request(t, ""))
	assert.ErrorIs(t, err, ErrMissingCategory)
	assert.Empty(t, inv.Calls())

	snap.DefaultCategory = "free"
	resp, err := e.Route(context.Background(), request(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "free", resp.Category)
	assert.Equal(t, "default", readAll(t, resp))
}

func TestRoute_UnknownCategoryExhausts(t *testing.T) {
	inv := newFakeInvoker()
	snap := snapshot(0, backend("A", false))
	e := New(config.Static{Snap: snap}, inv, newState(t), WithLogger(quietLogger()))

	_, err := e.Route(context.Background(), request(t, "paid"))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Empty(t, exhausted.Reasons)
	assert.Empty(t, inv.Calls())
}

func TestRoute_StalePinIsSkipped(t *testing.T) {
	ctx := context.Background()
	st := newState(t)
	require.NoError(t, st.SetPin(ctx, "free", "Gone"))

	inv := newFakeInvoker().on("A", ok("A"))
	snap := snapshot(0, backend("A", true), backend("Gone", false))
	e := New(config.Static{Snap: snap}, inv, st, WithLogger(quietLogger()))

	resp, err := e.Route(ctx, request(t, "free"))
	require.NoError(t, err)
	readAll(t, resp)

	// Gone is no longer latch-eligible, so it is not tried as a pin.
	assert.Equal(t, []string{"A"}, inv.Calls())
	pin, err := st.Pin(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, "A", pin)
}

// brokenState fails every operation.
type brokenState struct{}

var errBroken = errors.New("disk full")

func (brokenState) Pin(context.Context, string) (string, error)            { return "", errBroken }
func (brokenState) SetPin(context.Context, string, string) error           { return errBroken }
func (brokenState) ClearPin(context.Context, string, string) (bool, error) { return false, errBroken }
func (brokenState) RecordRequest(context.Context, string) error            { return errBroken }

func TestRoute_StateFailuresAreSwallowed(t *testing.T) {
	inv := newFakeInvoker().on("A", ok("still served"))
	snap := snapshot(0, backend("A", true))
	m := metrics.New()
	e := New(config.Static{Snap: snap}, inv, brokenState{}, WithLogger(quietLogger()), WithMetrics(m))

	resp, err := e.Route(context.Background(), request(t, "free"))
	require.NoError(t, err)
	assert.Equal(t, "still served", readAll(t, resp))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StateErrors.WithLabelValues("set_pin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StateErrors.WithLabelValues("record_request")))
}

func TestRoute_AuthRejectedMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("should not be reached"))
	}))
	defer srv.Close()

	snap := snapshot(0, config.Backend{Name: "A", URL: srv.URL, Categories: []string{"free"}})
	snap.APIKeys["free"] = "secret"
	e := New(config.Static{Snap: snap}, provider.NewInvoker(), newState(t), WithLogger(quietLogger()))

	req := request(t, "free")
	req.ClientAuth = "Bearer wrong"
	_, err := e.Route(context.Background(), req)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Reasons, 1)
	assert.Contains(t, exhausted.Reasons[0], "API key invalid")
	assert.NotContains(t, exhausted.Reasons[0], "transport")
	assert.Zero(t, calls.Load())

	req.ClientAuth = "Bearer secret"
	resp, err := e.Route(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "should not be reached", readAll(t, resp))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRoute_WrongClientKeyKeepsPin(t *testing.T) {
	ctx := context.Background()
	st := newState(t)
	require.NoError(t, st.SetPin(ctx, "free", "A"))

	inv := newFakeInvoker().on("A", result{err: &provider.AuthRejectedError{Backend: "A"}})
	e := New(config.Static{Snap: snapshot(0, backend("A", true))}, inv, st, WithLogger(quietLogger()))

	_, err := e.Route(ctx, request(t, "free"))
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)

	pin, err := st.Pin(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, "A", pin)
}

func TestRoute_FreeCategoryScenario(t *testing.T) {
	var aCalls, bCalls atomic.Int32
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		aCalls.Add(1)
		_, _ = w.Write([]byte("from A"))
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bCalls.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Hello from B"))
	}))
	defer b.Close()

	fc := &config.FileConfig{
		Models: []config.BackendEntry{
			{Name: "A", URL: a.URL, Category: []string{"free"}, Latch: false},
			{Name: "B", URL: b.URL, Category: []string{"free"}, Latch: true},
		},
		APIKeys: map[string]string{"free": ""},
		Retries: 0,
	}
	require.NoError(t, config.Validate(fc))

	ctx := context.Background()
	st := newState(t)
	e := New(config.Static{Snap: config.NewSnapshot(fc)}, provider.NewInvoker(), st, WithLogger(quietLogger()))

	resp, err := e.Route(ctx, request(t, "free"))
	require.NoError(t, err)
	assert.Equal(t, "B", resp.Backend)
	assert.Equal(t, "Hello from B", readAll(t, resp))
	assert.Equal(t, "text/plain", resp.Stream.ContentType())

	pin, err := st.Pin(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, "B", pin)

	resp, err = e.Route(ctx, request(t, "free"))
	require.NoError(t, err)
	assert.Equal(t, "B", resp.Backend)
	readAll(t, resp)

	assert.Zero(t, aCalls.Load())
	assert.Equal(t, int32(2), bCalls.Load())
}
