package cmd

import (
	"context"
	"path/filepath"
	"time"

	"github.com/vbauerster/mpb/v8"

	"github.com/raaddl/raad/cmd/common"
	"github.com/raaddl/raad/pkg/manager"
	"github.com/raaddl/raad/pkg/transfer"
)

// BarTracker polls the manager and mirrors each task into a progress bar.
type BarTracker struct {
	mgr         *manager.Manager
	p           *mpb.Progress
	refreshRate time.Duration
	ids         []string
	bars        map[string]*mpb.Bar
	last        map[string]manager.Info
}

func NewBarTracker(mgr *manager.Manager, p *mpb.Progress, refreshRate time.Duration, ids []string) *BarTracker {
	return &BarTracker{
		mgr:         mgr,
		p:           p,
		refreshRate: refreshRate,
		ids:         ids,
		bars:        make(map[string]*mpb.Bar),
		last:        make(map[string]manager.Info),
	}
}

// Wait refreshes the bars until every tracked task has settled or ctx is
// done, then closes the remaining bars and the container.
func (b *BarTracker) Wait(ctx context.Context) map[string]manager.Info {
	ticker := time.NewTicker(b.refreshRate)
	defer ticker.Stop()
	for !b.refresh() {
		select {
		case <-ctx.Done():
			b.abortAll()
			b.p.Wait()
			return b.last
		case <-ticker.C:
		}
	}
	b.p.Wait()
	return b.last
}

// refresh updates every bar and reports whether all tasks have settled.
func (b *BarTracker) refresh() bool {
	settings := b.mgr.Settings()
	settled := true
	for _, id := range b.ids {
		info, err := b.mgr.Task(id)
		if err != nil {
			b.finish(id, false)
			continue
		}
		b.last[id] = info
		bar := b.bar(info)
		if !bar.Completed() && !bar.Aborted() {
			if info.Total > 0 {
				bar.SetTotal(info.Total, false)
			}
			bar.EwmaSetCurrent(info.Received, b.refreshRate)
		}
		if !Settled(info, settings) {
			settled = false
			continue
		}
		b.finish(id, info.Status == transfer.StatusDone)
	}
	return settled
}

func (b *BarTracker) bar(info manager.Info) *mpb.Bar {
	if bar, ok := b.bars[info.ID]; ok {
		return bar
	}
	bar := common.NewTaskBar(b.p, common.ShortenName(filepath.Base(info.Path), 28), info.Total, info.Received)
	b.bars[info.ID] = bar
	return bar
}

func (b *BarTracker) finish(id string, ok bool) {
	bar, exists := b.bars[id]
	if !exists || bar.Completed() || bar.Aborted() {
		return
	}
	if ok {
		bar.SetTotal(-1, true)
		return
	}
	bar.Abort(false)
}

func (b *BarTracker) abortAll() {
	for _, bar := range b.bars {
		if !bar.Completed() && !bar.Aborted() {
			bar.Abort(false)
		}
	}
}

// Settled reports whether a task will not change again on its own: it is
// done, canceled, paused by the user, or failed with no retry left.
func Settled(info manager.Info, s manager.Settings) bool {
	switch info.Status {
	case transfer.StatusDone, transfer.StatusCanceled:
		return true
	case transfer.StatusPaused:
		return info.PauseReason == transfer.PauseUser
	case transfer.StatusError:
		budget := info.Options.Retry.Max
		if budget < 0 {
			budget = s.DefaultRetryMax
		}
		return info.Retries >= budget
	}
	return false
}
