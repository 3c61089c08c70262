package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/afero"
)

// segment is one byte range of a segmented task, persisted in .partN.
type segment struct {
	Range
	index      int
	downloaded int64
	path       string
	x          *exchange
}

// stream is the whole-resource transfer persisted in .part.
type stream struct {
	path     string
	written  int64
	resuming bool
	x        *exchange
}

// exchange is one HTTP request bound to one open file. Exactly one of seg
// and st is set. An exchange is dead once aborted or settled; events that
// arrive for a dead exchange are dropped.
type exchange struct {
	ctx    context.Context
	cancel context.CancelFunc
	seg    *segment
	st     *stream
	file   afero.File
	buf    []byte
	eof    bool
	dead   bool
	timer  *time.Timer
	space  chan struct{}
}

func (x *exchange) signal() {
	select {
	case x.space <- struct{}{}:
	default:
	}
}

func (t *Task) newExchange(f afero.File) *exchange {
	ctx, cancel := context.WithCancel(context.Background())
	return &exchange{ctx: ctx, cancel: cancel, file: f, space: make(chan struct{}, 1)}
}

// close releases the exchange. Buffered bytes that were not written are
// discarded.
func (t *Task) close(x *exchange) error {
	if x.dead {
		return nil
	}
	x.dead = true
	x.cancel()
	if x.timer != nil {
		x.timer.Stop()
		x.timer = nil
	}
	x.buf = nil
	if x.seg != nil {
		x.seg.x = nil
	}
	if x.st != nil {
		x.st.x = nil
	}
	return x.file.Close()
}

// abortTransport closes the probe and every exchange. Segment and stream
// counters stay so that Received keeps reporting bytes on disk.
func (t *Task) abortTransport() {
	if t.cancelProbe != nil {
		t.cancelProbe()
		t.cancelProbe = nil
	}
	for _, s := range t.segments {
		if s.x != nil {
			_ = t.close(s.x)
		}
	}
	if t.stream != nil && t.stream.x != nil {
		_ = t.close(t.stream.x)
	}
}

func (t *Task) newRequest(x *exchange) (*http.Request, error) {
	req, err := http.NewRequestWithContext(x.ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, err
	}
	applyNetwork(req, &t.opts.Network, t.userAgent)
	return req, nil
}

func openFlags(appending bool) int {
	if appending {
		return os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	return os.O_CREATE | os.O_WRONLY | os.O_TRUNC
}

func (t *Task) startSegments() {
	n := SegmentCount(t.total, t.opts.Segments)
	plan := PlanSegments(t.total, n)
	segs := make([]*segment, len(plan))
	for i, r := range plan {
		s := &segment{Range: r, index: i, path: t.segmentPath(i)}
		if fi, err := t.fs.Stat(s.path); err == nil && fi.Size() <= r.Len() {
			s.downloaded = fi.Size()
		}
		segs[i] = s
	}
	t.removeSegmentFilesFrom(len(plan))
	_ = t.fs.Remove(t.streamPath())
	t.stream = nil
	t.segments = segs
	t.sampleBytes = t.Received()
	t.logf("%d segment(s) for %d bytes, %d already on disk", len(segs), t.total, t.sampleBytes)

	pending := 0
	for _, s := range segs {
		if s.downloaded >= s.Len() {
			continue
		}
		if err := t.startSegment(s); err != nil {
			t.fail(err)
			return
		}
		pending++
	}
	if pending == 0 {
		t.merge()
	}
}

func (t *Task) startSegment(s *segment) error {
	f, err := t.fs.OpenFile(s.path, openFlags(s.downloaded > 0), 0o644)
	if err != nil {
		return err
	}
	x := t.newExchange(f)
	x.seg = s
	req, err := t.newRequest(x)
	if err != nil {
		_ = t.close(x)
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", s.Start+s.downloaded, s.End))
	if v := t.validator(); s.downloaded > 0 && v != "" {
		req.Header.Set("If-Range", v)
	}
	s.x = x
	t.log.Debug("segment %d: requesting %s", s.index, req.Header.Get("Range"))
	go t.fetch(t.client, x, req)
	return nil
}

// startStream opens .part and requests the whole resource, or its tail when
// allowResume finds a partial file.
func (t *Task) startStream(allowResume bool) {
	st := &stream{path: t.streamPath()}
	if allowResume {
		if fi, err := t.fs.Stat(st.path); err == nil && fi.Size() > 0 {
			st.written = fi.Size()
			st.resuming = true
		}
		if t.total > 0 && st.written > t.total {
			st.written, st.resuming = 0, false
		}
	}
	// segment files of an earlier segmented attempt are never merged now
	t.removeSegmentFilesFrom(0)
	t.segments = nil
	t.stream = st
	t.sampleBytes = st.written
	if st.resuming && st.written == t.total {
		t.completeStream(st)
		return
	}

	f, err := t.fs.OpenFile(st.path, openFlags(st.resuming), 0o644)
	if err != nil {
		t.fail(err)
		return
	}
	x := t.newExchange(f)
	x.st = st
	req, err := t.newRequest(x)
	if err != nil {
		_ = t.close(x)
		t.fail(err)
		return
	}
	if st.resuming {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", st.written))
		if v := t.validator(); v != "" {
			req.Header.Set("If-Range", v)
		}
		t.logf("resuming single stream at %d", st.written)
	}
	st.x = x
	go t.fetch(t.client, x, req)
}

// fallbackToStream drops every segment and downloads the whole resource in
// one stream.
func (t *Task) fallbackToStream() {
	t.abortTransport()
	for _, s := range t.segments {
		_ = t.fs.Remove(s.path)
	}
	t.segments = nil
	t.startStream(false)
}

// fetch runs outside the loop. It performs the request and feeds the body
// back chunk by chunk, waiting for buffer space when the throttle lags.
func (t *Task) fetch(client *http.Client, x *exchange, req *http.Request) {
	resp, err := client.Do(req)
	accepted := false
	t.loop.Do(func() { accepted = t.onResponse(x, resp, err) })
	if resp != nil && !accepted {
		resp.Body.Close()
	}
	if !accepted {
		return
	}
	defer resp.Body.Close()

	buf := make([]byte, readChunk)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			alive, full := false, false
			t.loop.Do(func() { alive, full = t.onData(x, buf[:n]) })
			if !alive {
				return
			}
			if full {
				select {
				case <-x.space:
				case <-x.ctx.Done():
					return
				}
			}
		}
		if rerr == io.EOF {
			t.loop.Do(func() { t.onEOF(x) })
			return
		}
		if rerr != nil {
			t.loop.Do(func() { t.onReadError(x, rerr) })
			return
		}
	}
}

func (t *Task) onResponse(x *exchange, resp *http.Response, err error) bool {
	if x.dead {
		return false
	}
	if err != nil {
		t.failExchange(x, err)
		return false
	}
	if x.seg != nil {
		return t.acceptSegment(x, resp)
	}
	return t.acceptStream(x, resp)
}

func (t *Task) acceptSegment(x *exchange, resp *http.Response) bool {
	s := x.seg
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		return true
	case resp.StatusCode == http.StatusOK:
		if s.Start+s.downloaded == 0 && s.End == t.total-1 {
			return true
		}
		t.logf("segment %d: range ignored by the server; switching to a single stream", s.index)
		t.fallbackToStream()
		return false
	default:
		t.failExchange(x, fmt.Errorf("%w: %s", ErrStatus, resp.Status))
		return false
	}
}

func (t *Task) acceptStream(x *exchange, resp *http.Response) bool {
	st := x.st
	code := resp.StatusCode
	if st.resuming {
		switch {
		case code >= http.StatusBadRequest:
			t.warn("Resume rejected; restarting")
			_ = t.close(x)
			_ = t.fs.Remove(st.path)
			t.startStream(false)
			return false
		case code == http.StatusOK:
			t.warn("Resume not supported; restarted")
			f, err := t.reopenTruncated(x)
			if err != nil {
				t.failExchange(x, err)
				return false
			}
			x.file = f
			st.written, st.resuming = 0, false
			t.sampleBytes = 0
		case code == http.StatusPartialContent:
			if t.total <= 0 && resp.ContentLength > 0 {
				t.total = st.written + resp.ContentLength
			}
			return true
		}
	}
	if code < 200 || code > 299 {
		t.failExchange(x, fmt.Errorf("%w: %s", ErrStatus, resp.Status))
		return false
	}
	if t.total <= 0 && resp.ContentLength > 0 {
		t.total = resp.ContentLength
	}
	return true
}

func (t *Task) reopenTruncated(x *exchange) (afero.File, error) {
	if err := x.file.Close(); err != nil {
		return nil, err
	}
	return t.fs.OpenFile(x.st.path, openFlags(false), 0o644)
}

// onData buffers p and drains what the throttle allows. It reports whether
// the exchange is still alive and whether the reader should wait for space.
func (t *Task) onData(x *exchange, p []byte) (alive, full bool) {
	if x.dead {
		return false, false
	}
	if s := x.seg; s != nil {
		room := s.Len() - s.downloaded - int64(len(x.buf))
		if room <= 0 {
			return true, false
		}
		if int64(len(p)) > room {
			p = p[:room]
		}
	}
	x.buf = append(x.buf, p...)
	t.drain(x)
	if x.dead {
		return false, false
	}
	return true, len(x.buf) >= int(highWater)
}

// drain writes buffered bytes in arrival order within the throttle budget
// and reschedules itself when the budget is spent.
func (t *Task) drain(x *exchange) {
	if x.dead || x.timer != nil {
		return
	}
	for len(x.buf) > 0 {
		n := t.window.allow(t.now(), t.maxSpeed, int64(len(x.buf)))
		if n <= 0 {
			if len(x.buf) < int(highWater) {
				x.signal()
			}
			x.timer = t.loop.After(throttleRetry, func() {
				x.timer = nil
				t.drain(x)
			})
			return
		}
		w, err := x.file.Write(x.buf[:n])
		if err == nil && int64(w) < n {
			err = io.ErrShortWrite
		}
		if w > 0 {
			t.window.consume(int64(w))
			x.buf = x.buf[w:]
			t.account(x, int64(w))
			if x.dead {
				return
			}
		}
		if err != nil {
			t.failExchange(x, err)
			return
		}
	}
	x.buf = nil
	x.signal()
	if x.eof {
		t.settle(x)
	}
}

func (t *Task) account(x *exchange, n int64) {
	if x.seg != nil {
		x.seg.downloaded += n
	} else {
		x.st.written += n
	}
	t.sample()
	t.handlers.ProgressHandler(t, t.Received(), t.total)
}

// sample refreshes speed and ETA at most every speedInterval.
func (t *Task) sample() {
	now := t.now()
	elapsed := now.Sub(t.sampleAt)
	if elapsed < speedInterval {
		return
	}
	recv := t.Received()
	delta := recv - t.sampleBytes
	if delta < 0 {
		delta = 0
	}
	t.speed = delta * 1000 / elapsed.Milliseconds()
	t.sampleAt, t.sampleBytes = now, recv
	t.eta = -1
	if t.speed > 0 && t.total > 0 {
		t.eta = max(t.total-recv, 0) / t.speed
	}
	t.speeds.push(t.speed)
	t.handlers.SpeedHandler(t, t.speed, t.eta)
}

func (t *Task) onEOF(x *exchange) {
	if x.dead {
		return
	}
	x.eof = true
	t.drain(x)
}

func (t *Task) onReadError(x *exchange, err error) {
	if x.dead || errors.Is(err, context.Canceled) {
		return
	}
	t.failExchange(x, err)
}

func (t *Task) failExchange(x *exchange, err error) {
	if x.seg != nil {
		err = fmt.Errorf("segment %d: %w", x.seg.index, err)
	}
	t.fail(err)
}

// settle closes an exchange whose body and buffer are both exhausted.
func (t *Task) settle(x *exchange) {
	seg, st := x.seg, x.st
	if err := t.close(x); err != nil {
		t.fail(err)
		return
	}
	if seg != nil {
		if seg.downloaded != seg.Len() {
			t.fail(fmt.Errorf("segment %d: %w", seg.index, ErrShortBody))
			return
		}
		for _, s := range t.segments {
			if s.x != nil || s.downloaded < s.Len() {
				return
			}
		}
		t.merge()
		return
	}
	if t.total > 0 && st.written != t.total {
		t.fail(ErrShortBody)
		return
	}
	t.completeStream(st)
}

func (t *Task) completeStream(st *stream) {
	_ = t.fs.Remove(t.path)
	if err := t.fs.Rename(st.path, t.path); err != nil {
		t.fail(err)
		return
	}
	t.finish(true)
}
