package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/raaddl/raad/internal/checksum"
	"github.com/raaddl/raad/pkg/manager"
)

// held is the env of commands that only edit the session.
var held = envOpts{held: true}

var addFlags = append([]cli.Flag{
	cli.BoolFlag{
		Name:  "paused",
		Usage: "add the downloads paused",
	},
}, taskFlags...)

func addTasks(ctx *cli.Context, e *env) error {
	if !ctx.Args().Present() {
		return errors.New("no url provided")
	}
	req, err := addRequest(ctx)
	if err != nil {
		return err
	}
	req.StartPaused = ctx.Bool("paused")
	var errs []error
	for _, raw := range ctx.Args() {
		r := req
		r.URL = raw
		id, err := e.mgr.AddDownload(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", raw, err))
			continue
		}
		info, _ := e.mgr.Task(id)
		fmt.Printf("added %s %s -> %s [%s]\n", shortID(id), raw, info.Path, info.Queue)
	}
	return errors.Join(errs...)
}

var allFlag = cli.BoolFlag{
	Name:  "all, a",
	Usage: "apply to every download",
}

// eachID runs fn for every id argument; with --all, all is run instead.
func eachID(ctx *cli.Context, e *env, all func(), fn func(id string) error) error {
	if all != nil && ctx.Bool("all") {
		all()
		return nil
	}
	if !ctx.Args().Present() {
		return errors.New("no download id provided")
	}
	var errs []error
	for _, arg := range ctx.Args() {
		id, err := resolveID(e.mgr, arg)
		if err == nil {
			err = fn(id)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info, _ := e.mgr.Task(id)
		fmt.Printf("%s: %s\n", shortID(id), info.Status)
	}
	return errors.Join(errs...)
}

func pauseTasks(ctx *cli.Context, e *env) error {
	return eachID(ctx, e, e.mgr.PauseAll, e.mgr.Pause)
}

func resumeTasks(ctx *cli.Context, e *env) error {
	return eachID(ctx, e, e.mgr.ResumeAll, e.mgr.Resume)
}

func cancelTasks(ctx *cli.Context, e *env) error {
	return eachID(ctx, e, e.mgr.CancelAll, e.mgr.Cancel)
}

func restartTasks(ctx *cli.Context, e *env) error {
	return eachID(ctx, e, nil, e.mgr.Restart)
}

func removeTasks(ctx *cli.Context, e *env) error {
	deleteFiles := ctx.Bool("files")
	if !ctx.Args().Present() {
		return errors.New("no download id provided")
	}
	var errs []error
	for _, arg := range ctx.Args() {
		id, err := resolveID(e.mgr, arg)
		if err == nil {
			err = e.mgr.Remove(id, deleteFiles)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Printf("%s: removed\n", shortID(id))
	}
	return errors.Join(errs...)
}

func retryFailed(_ *cli.Context, e *env) error {
	n := e.mgr.RetryFailed()
	fmt.Printf("%d failed downloads queued again\n", n)
	return nil
}

func clearCompleted(_ *cli.Context, e *env) error {
	n := e.mgr.ClearCompleted()
	fmt.Printf("%d finished downloads cleared\n", n)
	return nil
}

func verify(ctx *cli.Context, e *env) error {
	id, err := resolveID(e.mgr, ctx.Args().First())
	if err != nil {
		return err
	}
	if err := e.mgr.VerifyTask(id); err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(context.Background(), ctx.Duration("timeout"))
	defer cancel()
	info, err := waitVerified(wctx, e.mgr, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s", shortID(id), info.ChecksumState)
	if info.ChecksumActual != "" {
		fmt.Printf(" %s", info.ChecksumActual)
	}
	fmt.Println()
	if info.ChecksumState == checksum.Mismatch || info.ChecksumState == checksum.Failed {
		return fmt.Errorf("checksum %s", info.ChecksumState)
	}
	return nil
}

func waitVerified(ctx context.Context, mgr *manager.Manager, id string) (manager.Info, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		info, err := mgr.Task(id)
		if err != nil {
			return info, err
		}
		if info.ChecksumState != checksum.Pending && info.ChecksumState != checksum.Verifying {
			return info, nil
		}
		select {
		case <-ctx.Done():
			return info, ctx.Err()
		case <-ticker.C:
		}
	}
}
