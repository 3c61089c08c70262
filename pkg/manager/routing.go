package manager

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/raaddl/raad/internal/checksum"
	"github.com/raaddl/raad/internal/postaction"
	"github.com/raaddl/raad/pkg/transfer"
)

func (m *Manager) handlersFor(e *entry) transfer.Handlers {
	return transfer.Handlers{
		StateHandler: func(_ *transfer.Task, s transfer.State) {
			m.onState(e, s)
		},
		ProgressHandler: func(_ *transfer.Task, received, _ int64) {
			if m.live(e) {
				m.onProgress(e, received)
			}
		},
		SpeedHandler: func(t *transfer.Task, _, _ int64) {
			if m.live(e) {
				m.notify(Event{Kind: TaskChanged, TaskID: t.ID(), Status: t.Status()})
				m.updateTotals()
			}
		},
		WarningHandler: func(t *transfer.Task, msg string) {
			if m.live(e) {
				m.notify(Event{Kind: Warning, TaskID: t.ID(), Message: msg})
				m.scheduleSave()
			}
		},
	}
}

func (m *Manager) onState(e *entry, s transfer.State) {
	if !m.live(e) {
		return
	}
	t := e.task
	m.notify(Event{Kind: TaskChanged, TaskID: t.ID(), Status: t.Status()})
	if s == transfer.Finished || s == transfer.Canceled {
		m.onFinished(e)
	}
	m.scheduleSave()
	m.updateTotals()
}

// onFinished routes a task that left the running states: post actions and
// verification for Done, mirror or retry escalation for Error. The freed
// slot goes to the next queued task.
func (m *Manager) onFinished(e *entry) {
	t := e.task
	status := t.Status()
	m.recorder.TaskFinished(status)
	m.notify(Event{Kind: TaskFinished, TaskID: t.ID(), Status: status})
	switch status {
	case transfer.StatusDone:
		e.completedAt = m.now()
		e.retries = 0
		m.runPostActions(e)
		if c := t.Options().Checksum; c.VerifyOnComplete || checksum.Normalize(c.Expected) != "" {
			_ = m.verify(e)
		}
	case transfer.StatusError:
		e.completedAt = m.now()
		m.escalate(e)
	}
	m.startQueued()
}

func (m *Manager) runPostActions(e *entry) {
	t := e.task
	p := t.Options().Post
	if !p.Any() {
		return
	}
	ran, err := m.post.Run(postaction.Actions{
		RevealFolder: p.RevealFolder,
		OpenFile:     p.OpenFile,
		Extract:      p.Extract,
		Script:       p.Script,
	}, t.Path())
	for _, name := range ran {
		t.AppendLog("post action: " + name)
	}
	if err != nil {
		m.warn(t.ID(), fmt.Sprintf("Post action failed: %v", err))
	}
}

// retryPolicy resolves the task's retry options against the defaults.
func (m *Manager) retryPolicy(r transfer.RetryOptions) (maxRetries, delaySec int) {
	maxRetries, delaySec = r.Max, r.DelaySec
	if maxRetries < 0 {
		maxRetries = m.settings.DefaultRetryMax
	}
	if delaySec < 0 {
		delaySec = m.settings.DefaultRetryDelaySec
	}
	return maxRetries, delaySec
}

// escalate handles a failed task: the next mirror is tried right away,
// otherwise a retry is scheduled while the budget lasts.
func (m *Manager) escalate(e *entry) {
	t := e.task
	id := t.ID()
	if t.AdvanceMirror() {
		m.warn(id, "Switching mirror: "+t.URL())
		// the task takes back the slot it just gave up
		if m.held {
			t.Requeue()
			return
		}
		m.restart(e)
		return
	}
	maxRetries, delaySec := m.retryPolicy(t.Options().Retry)
	if e.retries >= maxRetries {
		m.log.Error("%s failed after %d retries: %s", id, e.retries, t.LastError())
		return
	}
	e.retries++
	m.recorder.Retry()
	m.warn(id, fmt.Sprintf("Retrying in %ds: %s", delaySec, filepath.Base(t.Path())))
	m.sched.After(retryPrefix+id, time.Duration(delaySec)*time.Second)
}

// retryDue restarts a task whose retry timer fired, unless the user moved
// it out of Error in the meantime. Without a free slot it waits in the
// queue.
func (m *Manager) retryDue(id string) {
	e, ok := m.tasks[id]
	if !ok || e.task.Status() != transfer.StatusError {
		return
	}
	if m.admissible(e) {
		m.restart(e)
		return
	}
	e.task.Requeue()
	m.startQueued()
}

func (m *Manager) restart(e *entry) {
	m.applySpeed(e)
	e.lastRecv = e.task.Received()
	e.task.Restart()
}

// verify submits a checksum job for the task's final file.
func (m *Manager) verify(e *entry) error {
	t := e.task
	id := t.ID()
	if m.verifier.Busy(id) {
		m.warn(id, "Checksum already running")
		return ErrChecksumBusy
	}
	c := t.Options().Checksum
	algo, err := checksum.ParseAlgorithm(c.Algorithm)
	if err != nil {
		m.setChecksum(e, checksum.Unknown, "")
		m.warn(id, fmt.Sprintf("Checksum: %v", err))
		return err
	}
	job := checksum.Job{
		Key:       id,
		Path:      t.Path(),
		Algorithm: checksum.Infer(c.Expected, algo),
		Expected:  c.Expected,
	}
	m.setChecksum(e, checksum.Pending, "")
	onStart := func() {
		m.loop.Do(func() {
			if m.live(e) && e.checksum == checksum.Pending {
				m.setChecksum(e, checksum.Verifying, "")
			}
		})
	}
	done := func(r checksum.Result) {
		m.loop.Do(func() { m.onChecksum(e, r) })
	}
	if !m.verifier.Submit(job, onStart, done) {
		m.warn(id, "Checksum already running")
		return ErrChecksumBusy
	}
	return nil
}

func (m *Manager) onChecksum(e *entry, r checksum.Result) {
	if !m.live(e) {
		return
	}
	id := e.task.ID()
	if r.Err != nil {
		m.log.Warning("checksum %s: %v", id, r.Err)
	}
	m.setChecksum(e, r.State, r.Actual)
	m.recorder.ChecksumResult(r.State)
	switch r.State {
	case checksum.Mismatch:
		m.warn(id, "Checksum mismatch: "+filepath.Base(e.task.Path()))
	case checksum.Failed:
		m.warn(id, "Checksum failed: "+filepath.Base(e.task.Path()))
	}
	m.scheduleSave()
}

func (m *Manager) setChecksum(e *entry, s checksum.State, actual string) {
	e.checksum = s
	e.actual = actual
	m.notify(Event{Kind: ChecksumChanged, TaskID: e.task.ID(), Checksum: s})
}

// VerifyTask hashes a task's file on demand.
func (m *Manager) VerifyTask(id string) error {
	var err error
	m.loop.Do(func() {
		var e *entry
		if e, err = m.lookup(id); err != nil {
			return
		}
		if e.task.Active() {
			err = ErrActive
			return
		}
		err = m.verify(e)
	})
	return err
}
