package manager

import "time"

// DefaultQueue always exists and receives tasks of removed queues.
const DefaultQueue = "General"

// Queue is a named policy bucket.
type Queue struct {
	Name          string
	MaxConcurrent int
	// MaxSpeed caps each task of the queue, 0 for none.
	MaxSpeed int64

	// ScheduleEnabled restricts running to [StartMinutes, EndMinutes) of
	// the local day. A window with start > end wraps past midnight; an
	// empty window (start == end) allows all day.
	ScheduleEnabled bool
	StartMinutes    int
	EndMinutes      int

	QuotaEnabled    bool
	QuotaBytes      int64
	DownloadedToday int64
	// LastReset is the local date DownloadedToday was last zeroed.
	LastReset time.Time
}

// ScheduleAllows reports whether now falls inside the queue's window.
func (q *Queue) ScheduleAllows(now time.Time) bool {
	if !q.ScheduleEnabled || q.StartMinutes == q.EndMinutes {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if q.StartMinutes < q.EndMinutes {
		return cur >= q.StartMinutes && cur < q.EndMinutes
	}
	return cur >= q.StartMinutes || cur < q.EndMinutes
}

// QuotaExhausted reports whether today's budget is used up.
func (q *Queue) QuotaExhausted() bool {
	return q.QuotaEnabled && q.QuotaBytes > 0 && q.DownloadedToday >= q.QuotaBytes
}

// Allowed reports whether tasks of the queue may run now.
func (q *Queue) Allowed(now time.Time) bool {
	return q.ScheduleAllows(now) && !q.QuotaExhausted()
}

// ResetIfStale zeroes DownloadedToday the first time it is called on a new
// local day and reports whether it did.
func (q *Queue) ResetIfStale(now time.Time) bool {
	today := dateOf(now)
	if !q.LastReset.IsZero() && dateOf(q.LastReset).Equal(today) {
		return false
	}
	q.LastReset = today
	q.DownloadedToday = 0
	return true
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

const dateLayout = "2006-01-02"
