package transfer

import "time"

// throttle is a one second token window shared by all segments of a task.
// It never blocks: a caller that gets no allowance retries after
// throttleRetry.
type throttle struct {
	start   time.Time
	written int64
}

// allow returns how many of want bytes may be written at now under limit
// bytes per second. limit 0 is unconstrained.
func (w *throttle) allow(now time.Time, limit, want int64) int64 {
	if limit <= 0 {
		return want
	}
	elapsed := now.Sub(w.start)
	if w.start.IsZero() || elapsed >= throttleWindow || elapsed < 0 {
		w.start = now
		w.written = 0
		elapsed = 0
	}
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	allowed := limit*ms/1000 - w.written
	if allowed > want {
		allowed = want
	}
	return allowed
}

func (w *throttle) consume(n int64) {
	w.written += n
}

func (w *throttle) reset() {
	w.start = time.Time{}
	w.written = 0
}
