// Package daemon runs a saved session in the foreground: it serves the
// metrics endpoint, processes the queues until stopped and saves the
// session on the way out.
package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sentinel errors for the runner.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running runner.
	ErrAlreadyRunning = errors.New("session is already running")

	// ErrNotRunning is returned when Shutdown() is called on a stopped runner.
	ErrNotRunning = errors.New("session is not running")

	// ErrShutdownTimeout is returned when the final save exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// DefaultShutdownTimeout bounds the final save and the metrics server drain.
const DefaultShutdownTimeout = 5 * time.Second

// Config holds the configuration for the runner.
type Config struct {
	// MetricsAddr is the listen address of the metrics endpoint; empty
	// disables it. Use ":0" for an ephemeral port.
	MetricsAddr string

	// ShutdownTimeout is the maximum time to wait for the final save.
	// A zero value means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Session is the part of the manager the runner drives.
type Session interface {
	Run(ctx context.Context) error
	Save() error
}

// Dependencies holds the external dependencies for the runner.
type Dependencies struct {
	// ListenerFactory creates network listeners.
	// If nil, net.Listen is used.
	ListenerFactory func(network, address string) (net.Listener, error)

	// Metrics is served on /metrics when MetricsAddr is set.
	Metrics http.Handler
}

// Runner manages the lifecycle of one foreground session.
type Runner struct {
	config   *Config
	deps     *Dependencies
	session  Session
	running  bool
	mu       sync.Mutex
	cancel   context.CancelFunc
	listener net.Listener
}

// New creates a runner for s. A nil config or deps selects the defaults.
func New(s Session, config *Config, deps *Dependencies) *Runner {
	return &Runner{
		config:  applyConfigDefaults(config),
		deps:    applyDependencyDefaults(deps),
		session: s,
	}
}

func applyConfigDefaults(config *Config) *Config {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &cfg
}

func applyDependencyDefaults(deps *Dependencies) *Dependencies {
	d := Dependencies{}
	if deps != nil {
		d = *deps
	}
	if d.ListenerFactory == nil {
		d.ListenerFactory = net.Listen
	}
	if d.Metrics == nil {
		d.Metrics = http.NotFoundHandler()
	}
	return &d
}

// Config returns the runner's configuration.
func (r *Runner) Config() *Config {
	return r.config
}

// Addr returns the address of the metrics listener, nil when none is open.
func (r *Runner) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Start processes the session and blocks until ctx is canceled or
// Shutdown is called, then saves the session. A canceled context is a
// normal stop and returns nil.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, r.cancel = context.WithCancel(ctx)

	// listen before running=true so that a failed bind leaves no state
	var srv *http.Server
	if r.config.MetricsAddr != "" {
		ln, err := r.deps.ListenerFactory("tcp", r.config.MetricsAddr)
		if err != nil {
			r.cancel()
			r.mu.Unlock()
			return err
		}
		r.listener = ln
		mux := http.NewServeMux()
		mux.Handle("/metrics", r.deps.Metrics)
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}
	r.running = true
	ln := r.listener
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), r.config.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		err := r.session.Run(gctx)
		// a finished Run stops the metrics server too
		r.cancel()
		return err
	})
	err := g.Wait()

	r.cleanupOnStop()
	if saveErr := r.save(); saveErr != nil && err == nil {
		err = saveErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) save() error {
	return executeWithTimeout(r.session.Save, r.config.ShutdownTimeout)
}

// executeWithTimeout returns ErrShutdownTimeout if fn outlives timeout.
func executeWithTimeout(fn func() error, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (r *Runner) cleanupOnStop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	if r.listener != nil {
		_ = r.listener.Close()
		r.listener = nil
	}
}

// Shutdown stops a running session. Start returns once the session is
// saved.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return ErrNotRunning
	}
	r.cancel()
	return nil
}

// IsRunning returns true while Start is processing the session.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
