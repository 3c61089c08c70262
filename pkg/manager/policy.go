package manager

import (
	"github.com/raaddl/raad/pkg/transfer"
)

// EffectiveSpeed folds the three speed levels into one limit. Zero at a
// level means that level does not constrain; the result is the smallest
// nonzero level, or 0 when none is set.
func EffectiveSpeed(global, queue, task int64) int64 {
	effective := global
	for _, v := range []int64{queue, task} {
		if v > 0 && (effective == 0 || v < effective) {
			effective = v
		}
	}
	return effective
}

func (m *Manager) applySpeed(e *entry) {
	q := m.queueOf(e)
	e.task.SetMaxSpeed(EffectiveSpeed(m.settings.GlobalMaxSpeed, q.MaxSpeed, e.task.Options().MaxSpeed))
}

func (m *Manager) batteryBlocks() bool {
	return m.settings.PauseOnBattery && m.onBattery
}

// blockReason returns the policy that forbids tasks of q to run now, in
// precedence order Battery, Schedule, Quota.
func (m *Manager) blockReason(q *Queue) transfer.PauseReason {
	switch {
	case m.batteryBlocks():
		return transfer.PauseBattery
	case !q.ScheduleAllows(m.now()):
		return transfer.PauseSchedule
	case q.QuotaExhausted():
		return transfer.PauseQuota
	}
	return transfer.PauseNone
}

// canAutoResume reports whether a task paused by policy reason may leave
// the pause: nothing blocks its queue anymore and, after a battery pause,
// resume-on-AC is enabled.
func (m *Manager) canAutoResume(q *Queue, reason transfer.PauseReason) bool {
	if !reason.IsPolicy() || m.blockReason(q) != transfer.PauseNone {
		return false
	}
	return reason != transfer.PauseBattery || m.settings.ResumeOnAC
}

// startQueued admits idle tasks in insertion order. A nested call, from a
// task that finished synchronously while being started, is folded into one
// more pass of the outer call.
func (m *Manager) startQueued() {
	if m.held {
		return
	}
	if m.admitting {
		m.readmit = true
		return
	}
	m.admitting = true
	defer func() { m.admitting = false }()
	for {
		m.readmit = false
		m.admit()
		if !m.readmit {
			break
		}
	}
	m.updateTotals()
}

func (m *Manager) running() (total int, perQueue map[string]int) {
	perQueue = make(map[string]int)
	for _, id := range m.order {
		e := m.tasks[id]
		if e.task.State() == transfer.Downloading {
			total++
			perQueue[e.queue]++
		}
	}
	return total, perQueue
}

func (m *Manager) queueLimit(q *Queue) int {
	if q.MaxConcurrent > 0 {
		return q.MaxConcurrent
	}
	return m.settings.MaxConcurrent
}

func (m *Manager) admit() {
	running, perQueue := m.running()
	now := m.now()
	for _, id := range append([]string(nil), m.order...) {
		if running >= m.settings.MaxConcurrent {
			return
		}
		e, ok := m.tasks[id]
		if !ok || e.task.State() != transfer.Idle {
			continue
		}
		if m.batteryBlocks() {
			return
		}
		q := m.queueOf(e)
		if !q.Allowed(now) || perQueue[q.Name] >= m.queueLimit(q) {
			continue
		}
		m.start(e)
		running++
		perQueue[q.Name]++
	}
}

// admissible reports whether e could be started right now under every cap
// and policy.
func (m *Manager) admissible(e *entry) bool {
	if m.held {
		return false
	}
	running, perQueue := m.running()
	q := m.queueOf(e)
	return running < m.settings.MaxConcurrent &&
		!m.batteryBlocks() &&
		q.Allowed(m.now()) &&
		perQueue[q.Name] < m.queueLimit(q)
}

func (m *Manager) start(e *entry) {
	m.applySpeed(e)
	e.lastRecv = e.task.Received()
	e.task.Start()
}

// enforcePolicies resets stale daily quotas, pauses running tasks whose
// queue is blocked and lifts policy pauses whose cause has cleared.
// Lifted tasks go back to Idle and are started by admission.
func (m *Manager) enforcePolicies() {
	now := m.now()
	for _, name := range m.queueOrder {
		q := m.queues[name]
		if q.ResetIfStale(now) {
			m.recorder.QueueDownloaded(name, 0)
			m.scheduleSave()
		}
	}
	for _, id := range append([]string(nil), m.order...) {
		e, ok := m.tasks[id]
		if !ok {
			continue
		}
		q := m.queueOf(e)
		t := e.task
		switch t.State() {
		case transfer.Downloading:
			if reason := m.blockReason(q); reason != transfer.PauseNone {
				t.Pause(reason)
			}
		case transfer.Paused:
			if m.canAutoResume(q, t.PauseReason()) {
				t.Requeue()
			}
		}
	}
}

func (m *Manager) tick() {
	m.enforcePolicies()
	m.startQueued()
}

// onProgress attributes new bytes to the task's queue.
func (m *Manager) onProgress(e *entry, received int64) {
	delta := received - e.lastRecv
	if delta < 0 {
		delta = 0
	}
	e.lastRecv = received
	if delta == 0 {
		return
	}
	q := m.queueOf(e)
	before := q.QuotaExhausted()
	q.DownloadedToday += delta
	m.recorder.BytesDownloaded(q.Name, delta)
	m.recorder.QueueDownloaded(q.Name, q.DownloadedToday)
	if !before && q.QuotaExhausted() {
		m.log.Info("queue %s reached its daily quota", q.Name)
		m.enforcePolicies()
	}
	m.updateTotals()
}

func (m *Manager) setOnBattery(on bool) {
	if m.onBattery == on {
		return
	}
	m.onBattery = on
	if on {
		m.log.Info("running on battery")
	} else {
		m.log.Info("running on AC power")
	}
	m.tick()
}
