// Package manager owns every transfer task and runs the queue policies on
// top of them: admission under global and per-queue caps, speed limits,
// schedule windows, daily quotas, power policy, mirror and retry
// escalation, checksum verification and session persistence.
//
// All state lives on a single transfer.Loop. Exported methods enter the
// loop themselves and must not be called from a Notifier.
package manager

import (
	"context"
	"strings"
	"time"

	"github.com/raaddl/raad/internal/checksum"
	"github.com/raaddl/raad/internal/postaction"
	"github.com/raaddl/raad/internal/power"
	"github.com/raaddl/raad/internal/scheduler"
	"github.com/raaddl/raad/internal/session"
	"github.com/raaddl/raad/pkg/logger"
	"github.com/raaddl/raad/pkg/transfer"
	"github.com/spf13/afero"
)

const (
	policyJob   = "policy"
	powerJob    = "power"
	retryPrefix = "retry/"
	// tickCron fires the policy tick and power poll once a minute.
	tickCron = "* * * * *"
)

// entry is the manager's bookkeeping around one task.
type entry struct {
	task     *transfer.Task
	queue    string
	category string
	// lastRecv is the received count of the previous progress event, for
	// quota deltas.
	lastRecv    int64
	retries     int
	completedAt time.Time
	checksum    checksum.State
	actual      string
}

// Manager is the queue and policy engine.
type Manager struct {
	loop      *transfer.Loop
	fs        afero.Fs
	log       logger.Logger
	now       func() time.Time
	notifier  Notifier
	recorder  Recorder
	store     session.Store
	probe     power.Probe
	newClient transfer.ClientFactory
	post      *postaction.Runner
	verifier  *checksum.Verifier
	sched     *scheduler.Scheduler
	saver     *session.Debouncer
	cancel    context.CancelFunc

	settings        Settings
	onBattery       bool
	queues          map[string]*Queue
	queueOrder      []string
	categoryFolders map[string]string
	domainRules     map[string]string
	tasks           map[string]*entry
	order           []string
	totals          Totals

	admitting bool
	readmit   bool
	restoring bool
	// held defers admission until Run.
	held bool
}

// Option customizes a Manager at construction.
type Option func(*Manager)

func WithFs(fs afero.Fs) Option { return func(m *Manager) { m.fs = fs } }

func WithLogger(l logger.Logger) Option { return func(m *Manager) { m.log = l } }

// WithClock replaces time.Now for schedules, quotas and timestamps.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithNotifier(n Notifier) Option { return func(m *Manager) { m.notifier = n } }

func WithRecorder(r Recorder) Option { return func(m *Manager) { m.recorder = r } }

// WithStore enables session persistence.
func WithStore(s session.Store) Option { return func(m *Manager) { m.store = s } }

// WithPowerProbe enables the battery policy poll.
func WithPowerProbe(p power.Probe) Option { return func(m *Manager) { m.probe = p } }

func WithClientFactory(f transfer.ClientFactory) Option {
	return func(m *Manager) { m.newClient = f }
}

func WithPostRunner(r *postaction.Runner) Option { return func(m *Manager) { m.post = r } }

func WithSettings(s Settings) Option { return func(m *Manager) { m.settings = s } }

// WithHeldAdmission keeps every task where it is until Run is called, for
// callers that only edit a session.
func WithHeldAdmission() Option { return func(m *Manager) { m.held = true } }

// New creates a manager with the default queue. Timers start right away;
// the policy tick starts with Run.
func New(options ...Option) *Manager {
	m := &Manager{
		loop:            transfer.NewLoop(),
		fs:              afero.NewOsFs(),
		now:             time.Now,
		recorder:        nopRecorder{},
		newClient:       transfer.NewHTTPClient,
		settings:        DefaultSettings(),
		queues:          make(map[string]*Queue),
		categoryFolders: make(map[string]string),
		domainRules:     make(map[string]string),
		tasks:           make(map[string]*entry),
	}
	for _, o := range options {
		o(m)
	}
	if m.log == nil {
		m.log = logger.NewNopLogger()
	}
	if m.notifier == nil {
		m.notifier = NotifierFunc(func(Event) {})
	}
	if m.post == nil {
		m.post = postaction.NewRunner(m.log.Named("post"))
	}
	m.settings.normalize()
	m.verifier = checksum.NewVerifier(m.fs, int64(m.settings.ChecksumWorkers))
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.sched = scheduler.New(ctx, m.onTrigger)
	m.saver = session.NewDebouncer(session.DefaultDebounce, m.saveNow)
	m.queues[DefaultQueue] = m.newQueue(DefaultQueue)
	m.queueOrder = []string{DefaultQueue}
	return m
}

// Run starts the policy tick and the power poll, admits queued tasks and
// blocks until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.sched.Every(policyJob, tickCron); err != nil {
		return err
	}
	if m.probe != nil {
		if err := m.sched.Every(powerJob, tickCron); err != nil {
			return err
		}
		m.pollPower()
	}
	m.loop.Do(func() {
		m.held = false
		m.tick()
	})
	<-ctx.Done()
	m.sched.Remove(policyJob)
	m.sched.Remove(powerJob)
	return nil
}

// Close stops the timers, waits for running checksum jobs and writes a
// pending session save. Tasks keep their state; running ones are saved as
// Active and queued again on the next load.
func (m *Manager) Close() error {
	m.cancel()
	m.verifier.Wait()
	m.saver.Stop()
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

func (m *Manager) onTrigger(key string) {
	switch {
	case key == policyJob:
		m.loop.Do(m.tick)
	case key == powerJob:
		m.pollPower()
	case strings.HasPrefix(key, retryPrefix):
		id := strings.TrimPrefix(key, retryPrefix)
		m.loop.Do(func() { m.retryDue(id) })
	}
}

// pollPower asks the probe outside the loop; it may run a command.
func (m *Manager) pollPower() {
	if m.probe == nil {
		return
	}
	var current bool
	m.loop.Do(func() { current = m.onBattery })
	next := power.Status(m.probe, current)
	m.loop.Do(func() { m.setOnBattery(next) })
}

func (m *Manager) notify(e Event) {
	m.notifier.Notify(e)
}

func (m *Manager) warn(taskID, msg string) {
	m.log.Warning("%s", msg)
	m.notify(Event{Kind: Warning, TaskID: taskID, Message: msg})
}

func (m *Manager) scheduleSave() {
	if m.restoring || m.store == nil {
		return
	}
	m.saver.Trigger()
}

func (m *Manager) saveNow() {
	if m.store == nil {
		return
	}
	var doc *session.Document
	m.loop.Do(func() { doc = m.document() })
	if err := m.store.Save(doc); err != nil {
		m.log.Error("save session: %v", err)
	}
}

// Save writes the session right away.
func (m *Manager) Save() error {
	if m.store == nil {
		return nil
	}
	var doc *session.Document
	m.loop.Do(func() { doc = m.document() })
	return m.store.Save(doc)
}

func (m *Manager) lookup(id string) (*entry, error) {
	e, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// live reports whether e is still registered; events of removed tasks are
// dropped.
func (m *Manager) live(e *entry) bool {
	return m.tasks[e.task.ID()] == e
}

func (m *Manager) ensureQueue(name string) *Queue {
	if q, ok := m.queues[name]; ok {
		return q
	}
	q := m.newQueue(name)
	m.queues[name] = q
	m.queueOrder = append(m.queueOrder, name)
	m.notify(Event{Kind: QueuesChanged})
	m.scheduleSave()
	return q
}

func (m *Manager) newQueue(name string) *Queue {
	return &Queue{
		Name:          name,
		MaxConcurrent: m.settings.MaxConcurrent,
		LastReset:     dateOf(m.now()),
	}
}

func (m *Manager) queueOf(e *entry) *Queue {
	return m.ensureQueue(e.queue)
}

func (m *Manager) newEntry(id, rawURL, path, queue, category string, opts transfer.Options) *entry {
	e := &entry{queue: queue, category: category, checksum: checksum.None}
	taskOpts := []transfer.TaskOption{
		transfer.WithFs(m.fs),
		transfer.WithLogger(m.log.Named("task")),
		transfer.WithHandlers(m.handlersFor(e)),
		transfer.WithClientFactory(m.newClient),
	}
	if id != "" {
		taskOpts = append(taskOpts, transfer.WithID(id))
	}
	e.task = transfer.NewTask(m.loop, rawURL, path, opts, taskOpts...)
	m.tasks[e.task.ID()] = e
	m.order = append(m.order, e.task.ID())
	m.applySpeed(e)
	return e
}

func (m *Manager) dropEntry(e *entry) {
	id := e.task.ID()
	delete(m.tasks, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.verifier.Cancel(id)
	m.sched.Remove(retryPrefix + id)
}

// Task returns a snapshot of one task.
func (m *Manager) Task(id string) (Info, error) {
	var (
		info Info
		err  error
	)
	m.loop.Do(func() {
		var e *entry
		if e, err = m.lookup(id); err == nil {
			info = m.info(e)
		}
	})
	return info, err
}

// Tasks returns snapshots of every task in insertion order.
func (m *Manager) Tasks() []Info {
	var out []Info
	m.loop.Do(func() {
		out = make([]Info, 0, len(m.order))
		for _, id := range m.order {
			out = append(out, m.info(m.tasks[id]))
		}
	})
	return out
}

// Info is a task snapshot with the manager's bookkeeping.
type Info struct {
	transfer.Snapshot
	Queue          string
	Category       string
	Retries        int
	CompletedAt    time.Time
	ChecksumState  checksum.State
	ChecksumActual string
	Logs           []string
}

func (m *Manager) info(e *entry) Info {
	return Info{
		Snapshot:       e.task.Snapshot(),
		Queue:          e.queue,
		Category:       e.category,
		Retries:        e.retries,
		CompletedAt:    e.completedAt,
		ChecksumState:  e.checksum,
		ChecksumActual: e.actual,
		Logs:           e.task.Logs(),
	}
}

// Totals returns the aggregate counters.
func (m *Manager) Totals() Totals {
	var t Totals
	m.loop.Do(func() { t = m.computeTotals() })
	return t
}

func (m *Manager) computeTotals() Totals {
	var tt Totals
	for _, id := range m.order {
		t := m.tasks[id].task
		tt.Received += t.Received()
		if total := t.Total(); total > 0 {
			tt.Total += total
		}
		switch t.Status() {
		case transfer.StatusActive:
			tt.Active++
			tt.Speed += t.Speed()
		case transfer.StatusQueued:
			tt.Queued++
		case transfer.StatusPaused:
			tt.Paused++
		case transfer.StatusDone:
			tt.Done++
		case transfer.StatusError:
			tt.Failed++
		case transfer.StatusCanceled:
			tt.Canceled++
		}
	}
	return tt
}

func (m *Manager) updateTotals() {
	tt := m.computeTotals()
	if tt == m.totals {
		return
	}
	m.totals = tt
	m.recorder.Totals(tt)
	m.notify(Event{Kind: TotalsChanged, Totals: tt})
}
