package manager

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raaddl/raad/internal/checksum"
	"github.com/raaddl/raad/pkg/transfer"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Helpers
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.October, day, hour, minute, 0, 0, time.Local)
}

// stallTransport never answers; requests end when their context does.
type stallTransport struct{}

func (stallTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	<-r.Context().Done()
	return nil, r.Context().Err()
}

func stallClients(*transfer.ProxyOptions) (*http.Client, error) {
	return &http.Client{Transport: stallTransport{}}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Notify(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) messages(kind EventKind) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e.Message)
		}
	}
	return out
}

type countingRecorder struct {
	nopRecorder
	mu        sync.Mutex
	retries   int
	finished  []transfer.Status
	checksums []checksum.State
	bytes     map[string]int64
}

func (r *countingRecorder) Retry() {
	r.mu.Lock()
	r.retries++
	r.mu.Unlock()
}

func (r *countingRecorder) TaskFinished(s transfer.Status) {
	r.mu.Lock()
	r.finished = append(r.finished, s)
	r.mu.Unlock()
}

func (r *countingRecorder) ChecksumResult(s checksum.State) {
	r.mu.Lock()
	r.checksums = append(r.checksums, s)
	r.mu.Unlock()
}

func (r *countingRecorder) BytesDownloaded(queue string, n int64) {
	r.mu.Lock()
	if r.bytes == nil {
		r.bytes = make(map[string]int64)
	}
	r.bytes[queue] += n
	r.mu.Unlock()
}

func (r *countingRecorder) bytesFor(queue string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes[queue]
}

func (r *countingRecorder) snapshot() (retries int, finished []transfer.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retries, append([]transfer.Status(nil), r.finished...)
}

type harness struct {
	m      *Manager
	fs     afero.Fs
	clock  *fakeClock
	events *eventLog
	rec    *countingRecorder
}

// newHarness builds a manager on an in-memory filesystem with a fixed
// clock at noon and a client that never gets an answer, so started tasks
// stay Active until paused or canceled.
func newHarness(t *testing.T, settings func(*Settings), options ...Option) *harness {
	t.Helper()
	h := &harness{
		fs:     afero.NewMemMapFs(),
		clock:  &fakeClock{now: at(18, 12, 0)},
		events: &eventLog{},
		rec:    &countingRecorder{},
	}
	s := DefaultSettings()
	s.DownloadDir = "/dl"
	if settings != nil {
		settings(&s)
	}
	base := []Option{
		WithFs(h.fs),
		WithClock(h.clock.Now),
		WithNotifier(h.events),
		WithRecorder(h.rec),
		WithClientFactory(stallClients),
		WithSettings(s),
	}
	h.m = New(append(base, options...)...)
	t.Cleanup(func() {
		h.m.CancelAll()
		_ = h.m.Close()
	})
	return h
}

func (h *harness) add(t *testing.T, rawURL string, mutate func(*AddRequest)) string {
	t.Helper()
	req := AddRequest{URL: rawURL, Options: transfer.DefaultOptions()}
	if mutate != nil {
		mutate(&req)
	}
	id, err := h.m.AddDownload(req)
	require.NoError(t, err)
	return id
}

func (h *harness) info(t *testing.T, id string) Info {
	t.Helper()
	info, err := h.m.Task(id)
	require.NoError(t, err)
	return info
}

func (h *harness) status(t *testing.T, id string) transfer.Status {
	t.Helper()
	return h.info(t, id).Status
}

// tick runs one policy pass as the minute timer would.
func (h *harness) tick() {
	h.m.loop.Do(h.m.tick)
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitStatus(t *testing.T, id string, want transfer.Status) {
	t.Helper()
	waitUntil(t, "status "+string(want), func() bool { return h.status(t, id) == want })
}

// fileServer serves data with byte ranges. The first failGets GET requests
// answer 500; status, when set, answers every request.
type fileServer struct {
	*httptest.Server
	data     []byte
	failGets int32
	status   int
	gets     atomic.Int32
}

func newFileServer(t *testing.T, data []byte, configure func(*fileServer)) *fileServer {
	t.Helper()
	s := &fileServer{data: data}
	if configure != nil {
		configure(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.status != 0 {
			w.WriteHeader(s.status)
			return
		}
		if r.Method == http.MethodGet && s.gets.Add(1) <= s.failGets {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(s.data))
	}))
	t.Cleanup(s.Close)
	return s
}

func payload(n int) []byte {
	return []byte(strings.Repeat("raad-payload-", n/13+1))[:n]
}
