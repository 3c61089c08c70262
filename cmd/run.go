package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/raaddl/raad/internal/daemon"
	"github.com/raaddl/raad/pkg/manager"
)

var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "metrics",
		Usage: "serve Prometheus metrics on this address, e.g. :9090",
	},
}

func run(ctx *cli.Context) error {
	// cur is set once the env exists; events of the session load are not
	// reported.
	var cur *env
	notifier := manager.NotifierFunc(func(ev manager.Event) {
		if cur == nil {
			return
		}
		switch ev.Kind {
		case manager.TaskFinished:
			cur.log.Info("task %s finished: %s", ev.TaskID, ev.Status)
		case manager.ChecksumChanged:
			cur.log.Info("task %s checksum: %s", ev.TaskID, ev.Checksum)
		}
	})
	return action("run", envOpts{held: true, notifier: notifier}, func(ctx *cli.Context, e *env) error {
		cur = e
		return runSession(ctx, e)
	})(ctx)
}

func runSession(ctx *cli.Context, e *env) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ctx.String("metrics")
	if addr == "" {
		addr = e.cfg.Metrics.Addr
	}
	r := daemon.New(e.mgr, &daemon.Config{MetricsAddr: addr}, &daemon.Dependencies{
		Metrics: e.metrics.Handler(),
	})
	t := e.mgr.Totals()
	e.log.Info("session loaded: %d queued, %d paused, %d done, %d failed",
		t.Queued, t.Paused, t.Done, t.Failed)
	if addr != "" {
		e.log.Info("metrics listening on %s", addr)
	}
	if err := r.Start(sigCtx); err != nil {
		return err
	}
	e.log.Info("stopped; running downloads resume on the next run")
	return nil
}
