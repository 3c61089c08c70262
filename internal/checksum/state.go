package checksum

// State is the verification state published for a task.
type State string

const (
	None      State = "None"
	Pending   State = "Pending"
	Verifying State = "Verifying"
	// Computed means a digest was produced but there was nothing to compare.
	Computed State = "Computed"
	OK       State = "OK"
	Mismatch State = "Mismatch"
	Failed   State = "Failed"
	Unknown  State = "Unknown"
)

// ParseState maps a stored state name back to a State. Empty means None;
// anything unrecognised is Unknown.
func ParseState(s string) State {
	switch st := State(s); st {
	case "":
		return None
	case None, Pending, Verifying, Computed, OK, Mismatch, Failed, Unknown:
		return st
	default:
		return Unknown
	}
}

// Outcome derives the final state from an expected and an actual digest.
func Outcome(expected, actual string) State {
	if Normalize(expected) == "" {
		return Computed
	}
	if Equal(expected, actual) {
		return OK
	}
	return Mismatch
}
