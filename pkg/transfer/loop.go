package transfer

import (
	"sync"
	"time"
)

// Loop is the single control flow shared by a set of tasks and their
// manager. Every state mutation runs inside Do, one at a time; network
// readers, timers and hashing workers hand their results back through it.
//
// Do is not reentrant: code already running inside the loop, including all
// Handlers, must call task methods directly.
type Loop struct {
	mu sync.Mutex
}

// NewLoop returns an idle loop.
func NewLoop() *Loop {
	return &Loop{}
}

// Do runs fn inside the loop and returns when fn has returned.
func (l *Loop) Do(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

// After runs fn inside the loop once d has elapsed. The returned timer may be
// stopped to drop fn.
func (l *Loop) After(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.Do(fn) })
}
