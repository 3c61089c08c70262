package transfer

// State is the lifecycle state of a Task.
type State int

const (
	Idle State = iota
	Downloading
	Paused
	// Finished is terminal; Task.Failed tells Done and Error apart.
	Finished
	Canceled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Downloading:
		return "Downloading"
	case Paused:
		return "Paused"
	case Finished:
		return "Finished"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Status is the user facing word of a state, the form stored in sessions.
type Status string

const (
	StatusQueued   Status = "Queued"
	StatusActive   Status = "Active"
	StatusPaused   Status = "Paused"
	StatusDone     Status = "Done"
	StatusError    Status = "Error"
	StatusCanceled Status = "Canceled"
)

// StatusOf folds the failed flag of Finished into the status word.
func StatusOf(s State, failed bool) Status {
	switch s {
	case Downloading:
		return StatusActive
	case Paused:
		return StatusPaused
	case Finished:
		if failed {
			return StatusError
		}
		return StatusDone
	case Canceled:
		return StatusCanceled
	default:
		return StatusQueued
	}
}

// PauseReason records who paused a task. Exactly one reason is held at a
// time; policy reasons may be lifted by the manager, PauseUser only by the user.
type PauseReason int

const (
	PauseNone PauseReason = iota
	PauseUser
	PauseBattery
	PauseSchedule
	PauseQuota
)

func (r PauseReason) String() string {
	switch r {
	case PauseUser:
		return "User"
	case PauseBattery:
		return "Battery"
	case PauseSchedule:
		return "Schedule"
	case PauseQuota:
		return "Quota"
	default:
		return ""
	}
}

// IsPolicy reports whether the pause was issued by a queue or power policy.
func (r PauseReason) IsPolicy() bool {
	return r == PauseBattery || r == PauseSchedule || r == PauseQuota
}

// ParsePauseReason is the inverse of PauseReason.String. Unknown values map
// to PauseUser so that a restored task is never resumed by policy by mistake.
func ParsePauseReason(s string) PauseReason {
	switch s {
	case "":
		return PauseNone
	case "Battery":
		return PauseBattery
	case "Schedule":
		return PauseSchedule
	case "Quota":
		return PauseQuota
	default:
		return PauseUser
	}
}
