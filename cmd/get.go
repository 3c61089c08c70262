package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	"github.com/raaddl/raad/cmd/common"
	"github.com/raaddl/raad/internal/checksum"
	"github.com/raaddl/raad/pkg/manager"
	"github.com/raaddl/raad/pkg/transfer"
)

var getFlags = append([]cli.Flag{
	cli.BoolFlag{
		Name:  "save",
		Usage: "record the downloads in the session so that they can be resumed",
	},
}, taskFlags...)

func get(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		if ctx.Command.Name == "" {
			return common.Help(ctx)
		}
		return common.PrintErrWithCmdHelp(ctx, errors.New("no url provided"))
	}
	o := envOpts{held: true, ephemeral: !ctx.Bool("save")}
	return action("get", o, runGet)(ctx)
}

func runGet(ctx *cli.Context, e *env) error {
	req, err := addRequest(ctx)
	if err != nil {
		return err
	}
	var ids []string
	for _, raw := range ctx.Args() {
		r := req
		r.URL = raw
		id, err := e.mgr.AddDownload(r)
		if err != nil {
			common.PrintRuntimeErr(ctx, "get", "add", fmt.Errorf("%s: %w", raw, err))
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return errors.New("nothing to download")
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		runErr = e.mgr.Run(runCtx)
		cancel()
	}()

	start := time.Now()
	p := mpb.New(mpb.WithWidth(64))
	infos := NewBarTracker(e.mgr, p, 200*time.Millisecond, ids).Wait(runCtx)
	waitChecksums(runCtx, e.mgr, infos)
	cancel()
	<-done
	if runErr != nil {
		return runErr
	}
	return summarize(ids, infos, time.Since(start))
}

// waitChecksums refreshes infos until no verification is pending.
func waitChecksums(ctx context.Context, mgr *manager.Manager, infos map[string]manager.Info) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		busy := false
		for id := range infos {
			info, err := mgr.Task(id)
			if err != nil {
				continue
			}
			infos[id] = info
			if info.ChecksumState == checksum.Pending || info.ChecksumState == checksum.Verifying {
				busy = true
			}
		}
		if !busy {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// summarize prints one line per download and fails when any of them did
// not finish.
func summarize(ids []string, infos map[string]manager.Info, took time.Duration) error {
	var failed int
	fmt.Println()
	for _, id := range ids {
		info, ok := infos[id]
		if !ok {
			failed++
			continue
		}
		line := fmt.Sprintf("%-8s %s (%s)", info.Status, filepath.Base(info.Path), humanize.IBytes(uint64(max(info.Received, 0))))
		if info.Error != "" {
			line += ": " + info.Error
		}
		if info.ChecksumState != "" && info.ChecksumState != checksum.None {
			line += fmt.Sprintf(" [checksum %s]", info.ChecksumState)
		}
		fmt.Println(line)
		if info.Status != transfer.StatusDone ||
			info.ChecksumState == checksum.Mismatch || info.ChecksumState == checksum.Failed {
			failed++
		}
	}
	fmt.Printf("\nTime Taken: %s\n", took.Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads did not finish", failed, len(ids))
	}
	return nil
}
