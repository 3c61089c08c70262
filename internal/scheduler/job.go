package scheduler

import "time"

// Job is one pending trigger.
type Job struct {
	// Key identifies the job. Adding a job with a key that is already
	// pending replaces the pending one.
	Key string
	// At is the wall-clock time the job fires.
	At time.Time
	// Cron, when set, re-arms the job at its next occurrence after firing.
	Cron string
}
