package transfer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/raaddl/raad/pkg/logger"
	"github.com/spf13/afero"
)

// Task downloads one resource, either as N byte-range segments or as a
// single stream. A Task is not safe for concurrent use: every method must be
// called inside its Loop.
type Task struct {
	id        string
	loop      *Loop
	fs        afero.Fs
	log       logger.Logger
	handlers  Handlers
	newClient ClientFactory
	client    *http.Client
	clientErr error
	now       func() time.Time
	userAgent string

	url         string
	mirrors     []string
	mirrorIndex int
	path        string
	opts        Options
	// maxSpeed is the resolved limit applied by the throttle.
	maxSpeed int64

	state         State
	failed        bool
	lastErr       string
	pauseReason   PauseReason
	pausedAt      time.Time
	completedAt   time.Time
	resumeWarning string

	etag         string
	lastModified string
	total        int64

	// gen invalidates probe results that arrive after a pause or restart.
	gen         int
	cancelProbe context.CancelFunc
	segments    []*segment
	stream      *stream
	seeded      int64

	window      throttle
	speed       int64
	eta         int64
	sampleAt    time.Time
	sampleBytes int64
	speeds      *ring[int64]
	logs        *ring[string]
}

// TaskOption customizes a Task at construction.
type TaskOption func(*Task)

// WithFs sets the filesystem used for temp and final files.
func WithFs(fs afero.Fs) TaskOption {
	return func(t *Task) { t.fs = fs }
}

// WithLogger sets the logger; the task logs under its id.
func WithLogger(l logger.Logger) TaskOption {
	return func(t *Task) { t.log = l }
}

// WithHandlers sets the task callbacks.
func WithHandlers(h Handlers) TaskOption {
	return func(t *Task) { t.handlers = h }
}

// WithClientFactory replaces NewHTTPClient.
func WithClientFactory(f ClientFactory) TaskOption {
	return func(t *Task) { t.newClient = f }
}

// WithClock replaces time.Now for throttling and speed sampling.
func WithClock(now func() time.Time) TaskOption {
	return func(t *Task) { t.now = now }
}

// WithID sets the task id instead of a random UUID.
func WithID(id string) TaskOption {
	return func(t *Task) { t.id = id }
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) TaskOption {
	return func(t *Task) { t.userAgent = ua }
}

// NewTask creates an Idle task that downloads rawURL to path. rawURL is put
// in front of opts.Mirrors unless the list already contains it.
func NewTask(loop *Loop, rawURL, path string, opts Options, options ...TaskOption) *Task {
	t := &Task{
		loop:      loop,
		fs:        afero.NewOsFs(),
		newClient: NewHTTPClient,
		now:       time.Now,
		userAgent: DefaultUserAgent,
		url:       rawURL,
		path:      path,
		opts:      opts,
		maxSpeed:  opts.MaxSpeed,
		total:     -1,
		eta:       -1,
		speeds:    newRing[int64](speedHistory),
		logs:      newRing[string](logHistory),
	}
	for _, o := range options {
		o(t)
	}
	if t.id == "" {
		t.id = uuid.NewString()
	}
	if t.log == nil {
		t.log = logger.NewNopLogger()
	}
	t.log = t.log.Named(t.id)
	t.handlers.setDefault()

	t.mirrors = []string{rawURL}
	found := -1
	for i, m := range opts.Mirrors {
		if m == rawURL {
			found = i
			break
		}
	}
	if found >= 0 {
		t.mirrors = append([]string(nil), opts.Mirrors...)
		t.mirrorIndex = found
	} else {
		t.mirrors = append(t.mirrors, opts.Mirrors...)
	}
	t.opts.Mirrors = nil
	t.client, t.clientErr = t.newClient(opts.Network.Proxy)
	return t
}

func (t *Task) ID() string               { return t.id }
func (t *Task) URL() string              { return t.url }
func (t *Task) Path() string             { return t.path }
func (t *Task) State() State             { return t.state }
func (t *Task) Failed() bool             { return t.failed }
func (t *Task) Status() Status           { return StatusOf(t.state, t.failed) }
func (t *Task) LastError() string        { return t.lastErr }
func (t *Task) PauseReason() PauseReason { return t.pauseReason }
func (t *Task) PausedAt() time.Time      { return t.pausedAt }
func (t *Task) CompletedAt() time.Time   { return t.completedAt }
func (t *Task) ResumeWarning() string    { return t.resumeWarning }
func (t *Task) Total() int64             { return t.total }
func (t *Task) Speed() int64             { return t.speed }
func (t *Task) ETA() int64               { return t.eta }
func (t *Task) MaxSpeed() int64          { return t.maxSpeed }
func (t *Task) Options() Options         { return t.opts }
func (t *Task) Mirrors() []string        { return append([]string(nil), t.mirrors...) }
func (t *Task) MirrorIndex() int         { return t.mirrorIndex }

// Validators returns the ETag and Last-Modified used for If-Range.
func (t *Task) Validators() (etag, lastModified string) { return t.etag, t.lastModified }

// Logs returns the retained diagnostic lines, oldest first.
func (t *Task) Logs() []string { return t.logs.values() }

// SpeedHistory returns the retained speed samples, oldest first.
func (t *Task) SpeedHistory() []int64 { return t.speeds.values() }

// Active reports whether the task currently holds network state.
func (t *Task) Active() bool { return t.state == Downloading }

// Received is the sum of bytes on disk across segments or the stream.
func (t *Task) Received() int64 {
	if t.stream != nil {
		return t.stream.written
	}
	if t.segments != nil {
		var sum int64
		for _, s := range t.segments {
			sum += s.downloaded
		}
		return sum
	}
	return t.seeded
}

// Segmented reports whether the current transport mode is byte-range segments.
func (t *Task) Segmented() bool { return t.segments != nil }

// SegmentCount returns the number of planned segments, 0 in stream mode.
func (t *Task) SegmentCount() int { return len(t.segments) }

func (t *Task) segmentPath(i int) string { return t.path + ".part" + strconv.Itoa(i) }
func (t *Task) streamPath() string       { return t.path + ".part" }

func (t *Task) setState(s State) {
	t.state = s
	t.handlers.StateHandler(t, s)
}

func (t *Task) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	t.logs.push(t.now().Format("15:04:05") + " " + msg)
	t.log.Info("%s", msg)
}

// AppendLog adds a line to the task's diagnostic log.
func (t *Task) AppendLog(line string) {
	t.logf("%s", line)
}

func (t *Task) warn(msg string) {
	t.resumeWarning = msg
	t.logs.push(t.now().Format("15:04:05") + " " + msg)
	t.log.Warning("%s", msg)
	t.handlers.WarningHandler(t, msg)
}

// Start probes the active URL and begins the transfer. It is a no-op unless
// the task is Idle or Paused.
func (t *Task) Start() {
	if t.state != Idle && t.state != Paused {
		return
	}
	t.abortTransport()
	t.gen++
	gen := t.gen
	t.failed = false
	t.lastErr = ""
	t.pauseReason = PauseNone
	t.pausedAt = time.Time{}
	t.window.reset()
	t.sampleAt = t.now()
	t.sampleBytes = t.Received()
	t.setState(Downloading)
	if t.state != Downloading || t.gen != gen {
		return
	}
	if t.clientErr != nil {
		t.fail(t.clientErr)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancelProbe = cancel
	client, rawURL, network := t.client, t.url, t.opts.Network
	t.logf("probing %s", rawURL)
	go func() {
		res, err := Probe(ctx, client, rawURL, &network, t.userAgent)
		cancel()
		t.loop.Do(func() {
			if gen != t.gen || t.state != Downloading {
				return
			}
			t.cancelProbe = nil
			t.onProbe(res, err)
		})
	}()
}

func (t *Task) onProbe(res *ProbeResult, err error) {
	if err != nil || res.Length <= 0 {
		if err != nil {
			t.logf("probe failed (%v); using a single stream", err)
		} else {
			t.logf("size unknown; using a single stream")
		}
		t.total = -1
		t.startStream(false)
		return
	}
	if t.validatorsChanged(res) {
		t.logf("resource changed on the server; discarding partial data")
		t.removeArtifacts()
		t.segments, t.stream, t.seeded = nil, nil, 0
	}
	t.etag, t.lastModified = res.ETag, res.LastModified
	t.total = res.Length
	if !res.AcceptRanges {
		t.logf("server does not accept ranges; using a single stream")
		t.startStream(true)
		return
	}
	t.startSegments()
}

func (t *Task) validatorsChanged(res *ProbeResult) bool {
	if t.etag != "" && res.ETag != "" {
		return t.etag != res.ETag
	}
	return t.lastModified != "" && res.LastModified != "" && t.lastModified != res.LastModified
}

func (t *Task) validator() string {
	if t.etag != "" {
		return t.etag
	}
	return t.lastModified
}

// Pause aborts all network activity and keeps the partial files on disk.
// PauseNone is recorded as PauseUser.
func (t *Task) Pause(reason PauseReason) {
	if t.state != Downloading && t.state != Idle {
		return
	}
	if reason == PauseNone {
		reason = PauseUser
	}
	t.abortTransport()
	t.gen++
	t.resetClient()
	t.speed, t.eta = 0, -1
	t.pauseReason = reason
	t.pausedAt = t.now()
	t.logf("paused (%s)", reason)
	t.setState(Paused)
}

// Resume restarts a paused task from its on-disk state. The server is
// probed again.
func (t *Task) Resume() {
	if t.state != Paused {
		return
	}
	t.pauseReason = PauseNone
	t.setState(Idle)
	t.Start()
}

// Requeue moves a paused or finished task back to Idle without starting
// it. A finished download is fetched again on its next start.
func (t *Task) Requeue() {
	if t.state != Paused && t.state != Finished {
		return
	}
	t.abortTransport()
	t.gen++
	t.failed = false
	t.completedAt = time.Time{}
	t.pauseReason = PauseNone
	t.pausedAt = time.Time{}
	t.setState(Idle)
}

// Dispose drops whatever temp artifacts a task still owns, without a state
// change. It is called when a task leaves its owner's registry.
func (t *Task) Dispose() {
	t.abortTransport()
	t.gen++
	if t.state == Finished && !t.failed {
		return
	}
	t.removeArtifacts()
	t.segments, t.stream, t.seeded = nil, nil, 0
}

// Cancel aborts the task and deletes every temp artifact it owns. The final
// file of a finished download is left alone.
func (t *Task) Cancel() {
	if t.state == Canceled || t.state == Finished {
		return
	}
	t.abortTransport()
	t.gen++
	t.removeArtifacts()
	t.segments, t.stream, t.seeded = nil, nil, 0
	t.speed, t.eta = 0, -1
	t.pauseReason = PauseNone
	t.logf("canceled")
	t.setState(Canceled)
}

// Restart resets bookkeeping and starts again, reusing partial files.
func (t *Task) Restart() {
	if t.state == Canceled {
		return
	}
	t.abortTransport()
	t.gen++
	t.resetClient()
	t.failed = false
	t.lastErr = ""
	t.completedAt = time.Time{}
	t.pauseReason = PauseNone
	t.state = Idle
	t.Start()
}

// SetMaxSpeed changes the resolved throttle limit; 0 removes it. The current
// window keeps its byte count.
func (t *Task) SetMaxSpeed(bps int64) {
	if bps < 0 {
		bps = 0
	}
	t.maxSpeed = bps
}

// SetSpeedCap changes the task's own configured cap. The manager folds it
// into the resolved limit.
func (t *Task) SetSpeedCap(bps int64) {
	if bps < 0 {
		bps = 0
	}
	t.opts.MaxSpeed = bps
}

// SetOptions replaces the descriptive options (checksum, retry, post actions
// and network) of a task that is not downloading.
func (t *Task) SetOptions(opts Options) {
	if t.state == Downloading {
		return
	}
	proxyChanged := t.opts.Network.Proxy != opts.Network.Proxy
	opts.Mirrors = nil
	t.opts = opts
	if proxyChanged {
		t.resetClient()
	}
}

// AdvanceMirror switches to the next mirror and forgets the resume
// validators of the previous host. It reports whether a mirror was left.
func (t *Task) AdvanceMirror() bool {
	if t.mirrorIndex+1 >= len(t.mirrors) {
		return false
	}
	t.mirrorIndex++
	t.url = t.mirrors[t.mirrorIndex]
	t.etag, t.lastModified = "", ""
	t.logf("switching to mirror %d: %s", t.mirrorIndex, t.url)
	return true
}

// SetMirrorIndex selects a mirror without touching the validators.
func (t *Task) SetMirrorIndex(i int) {
	if i < 0 || i >= len(t.mirrors) {
		return
	}
	t.mirrorIndex = i
	t.url = t.mirrors[i]
}

// SetPath moves the task's target. Only allowed while no transfer runs.
func (t *Task) SetPath(p string) bool {
	if t.state == Downloading {
		return false
	}
	t.path = p
	return true
}

// SetValidators restores resume validators from a saved session.
func (t *Task) SetValidators(etag, lastModified string) {
	t.etag, t.lastModified = etag, lastModified
}

// SetResumeWarning restores the last user visible warning.
func (t *Task) SetResumeWarning(s string) { t.resumeWarning = s }

// SeedStats restores counters before any transport exists.
func (t *Task) SeedStats(received, total, speed, eta int64) {
	t.seeded = received
	t.total = total
	t.speed = speed
	t.eta = eta
}

// MarkPaused, MarkDone, MarkError and MarkCanceled restore a saved state
// without notifying handlers.
func (t *Task) MarkPaused(reason PauseReason, at time.Time) {
	if reason == PauseNone {
		reason = PauseUser
	}
	t.state, t.pauseReason, t.pausedAt = Paused, reason, at
}

func (t *Task) MarkDone(at time.Time) {
	t.state, t.failed, t.completedAt = Finished, false, at
}

func (t *Task) MarkError(msg string) {
	t.state, t.failed, t.lastErr = Finished, true, msg
}

func (t *Task) MarkCanceled() {
	t.state = Canceled
}

func (t *Task) resetClient() {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client, t.clientErr = t.newClient(t.opts.Network.Proxy)
}

// fail ends a running transfer with Finished(Error). Partial files stay.
func (t *Task) fail(err error) {
	if t.state != Downloading {
		return
	}
	t.abortTransport()
	t.gen++
	t.lastErr = err.Error()
	t.logs.push(t.now().Format("15:04:05") + " error: " + t.lastErr)
	t.log.Error("%v", err)
	t.finish(false)
}

func (t *Task) finish(ok bool) {
	t.failed = !ok
	t.speed, t.eta = 0, -1
	if ok {
		t.completedAt = t.now()
		t.lastErr = ""
		if t.total <= 0 {
			t.total = t.Received()
		}
		t.logf("finished, %d bytes", t.total)
	}
	t.setState(Finished)
}

// removeArtifacts deletes the stream temp file and every segment temp file.
func (t *Task) removeArtifacts() {
	_ = t.fs.Remove(t.streamPath())
	t.removeSegmentFilesFrom(0)
}

// removeSegmentFilesFrom deletes .partN files for N >= from. Indices below
// the largest known plan are always tried; beyond it the scan stops at the
// first gap.
func (t *Task) removeSegmentFilesFrom(from int) {
	known := max(len(t.segments), t.opts.Segments, DefaultSegments)
	for i := from; ; i++ {
		p := t.segmentPath(i)
		if _, err := t.fs.Stat(p); err != nil {
			if i >= known {
				return
			}
			continue
		}
		_ = t.fs.Remove(p)
	}
}

// BytesOnDisk sums the temp files, or reports the final file once done.
func (t *Task) BytesOnDisk() int64 {
	size := func(p string) int64 {
		fi, err := t.fs.Stat(p)
		if err != nil {
			return 0
		}
		return fi.Size()
	}
	if t.state == Finished && !t.failed {
		return size(t.path)
	}
	sum := size(t.streamPath())
	for i := 0; ; i++ {
		fi, err := t.fs.Stat(t.segmentPath(i))
		if err != nil {
			if os.IsNotExist(err) && i < len(t.segments) {
				continue
			}
			return sum
		}
		sum += fi.Size()
	}
}

// Snapshot is a copy of the observable task state.
type Snapshot struct {
	ID            string
	URL           string
	Mirrors       []string
	MirrorIndex   int
	Path          string
	State         State
	Status        Status
	Error         string
	PauseReason   PauseReason
	PausedAt      time.Time
	CompletedAt   time.Time
	Received      int64
	Total         int64
	Speed         int64
	ETA           int64
	MaxSpeed      int64
	Segments      int
	ETag          string
	LastModified  string
	ResumeWarning string
	Options       Options
}

// Snapshot copies the observable state.
func (t *Task) Snapshot() Snapshot {
	return Snapshot{
		ID:            t.id,
		URL:           t.url,
		Mirrors:       t.Mirrors(),
		MirrorIndex:   t.mirrorIndex,
		Path:          t.path,
		State:         t.state,
		Status:        t.Status(),
		Error:         t.lastErr,
		PauseReason:   t.pauseReason,
		PausedAt:      t.pausedAt,
		CompletedAt:   t.completedAt,
		Received:      t.Received(),
		Total:         t.total,
		Speed:         t.speed,
		ETA:           t.eta,
		MaxSpeed:      t.maxSpeed,
		Segments:      len(t.segments),
		ETag:          t.etag,
		LastModified:  t.lastModified,
		ResumeWarning: t.resumeWarning,
		Options:       t.opts,
	}
}
