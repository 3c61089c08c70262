// Package scheduler runs keyed timers from a single goroutine. Pending jobs
// live in a min-heap ordered by trigger time; the goroutine never sleeps
// longer than a minute so that clock steps, DST changes and system sleep are
// noticed on the next wake-up.
//
// A job either fires once (retry delays) or recurs on a cron expression
// (policy ticks, power polls). Jobs are in memory only; owners re-add them
// after a restart.
package scheduler
