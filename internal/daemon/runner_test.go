package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSession struct {
	runs    atomic.Int32
	saves   atomic.Int32
	runErr  error
	saveErr error
	block   bool
	saveFor time.Duration
}

func (s *fakeSession) Run(ctx context.Context) error {
	s.runs.Add(1)
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.runErr
}

func (s *fakeSession) Save() error {
	s.saves.Add(1)
	time.Sleep(s.saveFor)
	return s.saveErr
}

func waitRunning(t *testing.T, r *Runner) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !r.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("runner did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestNew_Defaults tests that nil config and deps get usable defaults.
func TestNew_Defaults(t *testing.T) {
	r := New(&fakeSession{}, nil, nil)
	if r == nil {
		t.Fatal("New() returned nil runner")
	}
	if r.Config().ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", r.Config().ShutdownTimeout, DefaultShutdownTimeout)
	}
	if r.Config().MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want empty", r.Config().MetricsAddr)
	}
	if r.IsRunning() {
		t.Error("new runner should not be running")
	}
}

// TestNew_CopiesConfig tests that the caller's config is not modified.
func TestNew_CopiesConfig(t *testing.T) {
	cfg := &Config{MetricsAddr: ":0"}
	r := New(&fakeSession{}, cfg, nil)
	if cfg.ShutdownTimeout != 0 {
		t.Error("New() modified the caller's config")
	}
	if r.Config().MetricsAddr != ":0" {
		t.Errorf("MetricsAddr = %q, want :0", r.Config().MetricsAddr)
	}
}

// TestRunner_Start_SavesOnCancel tests that a canceled context is a clean
// stop followed by a save.
func TestRunner_Start_SavesOnCancel(t *testing.T) {
	s := &fakeSession{block: true}
	r := New(s, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(ctx) }()
	waitRunning(t, r)

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
	if s.saves.Load() != 1 {
		t.Errorf("saves = %d, want 1", s.saves.Load())
	}
	if r.IsRunning() {
		t.Error("runner still running after stop")
	}
}

// TestRunner_Start_RunError tests that a session error is returned and the
// session is still saved.
func TestRunner_Start_RunError(t *testing.T) {
	boom := errors.New("boom")
	s := &fakeSession{runErr: boom}
	err := New(s, nil, nil).Start(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Start() = %v, want %v", err, boom)
	}
	if s.saves.Load() != 1 {
		t.Errorf("saves = %d, want 1", s.saves.Load())
	}
}

// TestRunner_Start_SaveError tests that a failed final save is reported.
func TestRunner_Start_SaveError(t *testing.T) {
	boom := errors.New("disk full")
	s := &fakeSession{saveErr: boom}
	if err := New(s, nil, nil).Start(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Start() = %v, want %v", err, boom)
	}
}

// TestRunner_Start_SaveTimeout tests that a stuck save does not block forever.
func TestRunner_Start_SaveTimeout(t *testing.T) {
	s := &fakeSession{saveFor: 500 * time.Millisecond}
	r := New(s, &Config{ShutdownTimeout: 20 * time.Millisecond}, nil)
	if err := r.Start(context.Background()); !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("Start() = %v, want %v", err, ErrShutdownTimeout)
	}
}

// TestRunner_Start_AlreadyRunning tests that a second Start() is refused.
func TestRunner_Start_AlreadyRunning(t *testing.T) {
	r := New(&fakeSession{block: true}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Start(ctx) }()
	waitRunning(t, r)

	if err := r.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want %v", err, ErrAlreadyRunning)
	}
}

// TestRunner_Start_ListenerError tests that a failed bind leaves the runner
// stopped and never runs the session.
func TestRunner_Start_ListenerError(t *testing.T) {
	listenErr := errors.New("address in use")
	s := &fakeSession{}
	r := New(s, &Config{MetricsAddr: ":9"}, &Dependencies{
		ListenerFactory: func(network, address string) (net.Listener, error) {
			return nil, listenErr
		},
	})
	if err := r.Start(context.Background()); !errors.Is(err, listenErr) {
		t.Errorf("Start() = %v, want %v", err, listenErr)
	}
	if r.IsRunning() {
		t.Error("runner running after listener error")
	}
	if s.runs.Load() != 0 {
		t.Error("session ran after listener error")
	}
}

// TestRunner_ServesMetrics tests the metrics endpoint while the session runs.
func TestRunner_ServesMetrics(t *testing.T) {
	var served atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		served.Store(true)
		_, _ = io.WriteString(w, "raad_retries_total 0\n")
	})
	r := New(&fakeSession{block: true}, &Config{MetricsAddr: "127.0.0.1:0"}, &Dependencies{Metrics: handler})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(ctx) }()
	waitRunning(t, r)

	addr := r.Addr()
	if addr == nil {
		t.Fatal("Addr() = nil while running")
	}
	resp, err := http.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "raad_retries_total 0\n" {
		t.Errorf("GET /metrics = %d %q", resp.StatusCode, body)
	}
	if !served.Load() {
		t.Error("metrics handler not called")
	}

	if err := r.Shutdown(); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Start() = %v, want nil", err)
	}
	if r.Addr() != nil {
		t.Error("listener still open after stop")
	}
}

// TestRunner_Shutdown_NotRunning tests Shutdown() on a stopped runner.
func TestRunner_Shutdown_NotRunning(t *testing.T) {
	if err := New(&fakeSession{}, nil, nil).Shutdown(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Shutdown() = %v, want %v", err, ErrNotRunning)
	}
}
