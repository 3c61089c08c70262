package manager

import (
	"github.com/raaddl/raad/internal/checksum"
	"github.com/raaddl/raad/pkg/transfer"
)

// EventKind tells what an Event reports.
type EventKind int

const (
	TaskAdded EventKind = iota
	TaskRemoved
	TaskChanged
	// TaskFinished carries Done, Error or Canceled in Status.
	TaskFinished
	ChecksumChanged
	// Warning is a user visible message; TaskID may be empty.
	Warning
	QueuesChanged
	TotalsChanged
)

func (k EventKind) String() string {
	switch k {
	case TaskAdded:
		return "added"
	case TaskRemoved:
		return "removed"
	case TaskChanged:
		return "changed"
	case TaskFinished:
		return "finished"
	case ChecksumChanged:
		return "checksum"
	case Warning:
		return "warning"
	case QueuesChanged:
		return "queues"
	case TotalsChanged:
		return "totals"
	default:
		return "unknown"
	}
}

// Event is delivered to the Notifier from inside the manager's loop.
type Event struct {
	Kind     EventKind
	TaskID   string
	Status   transfer.Status
	Checksum checksum.State
	Message  string
	Totals   Totals
}

// Notifier receives events. Notify runs inside the manager's loop and must
// not call back into the Manager synchronously.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Recorder receives counters for telemetry. Calls happen inside the loop.
type Recorder interface {
	TaskFinished(status transfer.Status)
	ChecksumResult(state checksum.State)
	BytesDownloaded(queue string, n int64)
	QueueDownloaded(queue string, today int64)
	Retry()
	Totals(t Totals)
}

type nopRecorder struct{}

func (nopRecorder) TaskFinished(transfer.Status) {}
func (nopRecorder) ChecksumResult(checksum.State) {}
func (nopRecorder) BytesDownloaded(string, int64) {}
func (nopRecorder) QueueDownloaded(string, int64) {}
func (nopRecorder) Retry() {}
func (nopRecorder) Totals(Totals) {}

// Totals aggregates every task.
type Totals struct {
	Speed    int64
	Received int64
	Total    int64
	Active   int
	Queued   int
	Paused   int
	Done     int
	Failed   int
	Canceled int
}
