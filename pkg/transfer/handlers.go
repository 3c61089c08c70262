package transfer

type (
	// StateHandler is called after every state transition. Finished is
	// reported through it as well; use Task.Failed to tell Done from Error.
	StateHandler func(t *Task, s State)
	// ProgressHandler is called after bytes reach disk.
	ProgressHandler func(t *Task, received, total int64)
	// SpeedHandler is called on every speed sample; eta is -1 when unknown.
	SpeedHandler func(t *Task, bytesPerSec, eta int64)
	// WarningHandler receives user visible warnings such as a rejected resume.
	WarningHandler func(t *Task, msg string)
)

// Handlers are the typed callbacks of a Task. They run inside the task's
// Loop and must not call Loop.Do.
type Handlers struct {
	StateHandler    StateHandler
	ProgressHandler ProgressHandler
	SpeedHandler    SpeedHandler
	WarningHandler  WarningHandler
}

func (h *Handlers) setDefault() {
	if h.StateHandler == nil {
		h.StateHandler = func(*Task, State) {}
	}
	if h.ProgressHandler == nil {
		h.ProgressHandler = func(*Task, int64, int64) {}
	}
	if h.SpeedHandler == nil {
		h.SpeedHandler = func(*Task, int64, int64) {}
	}
	if h.WarningHandler == nil {
		h.WarningHandler = func(*Task, string) {}
	}
}
