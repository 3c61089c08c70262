package session

import (
	"sync"
	"time"
)

// DefaultDebounce is the delay used by the manager between a change and the
// save it triggers.
const DefaultDebounce = 400 * time.Millisecond

// Debouncer coalesces bursts of Trigger calls into one call of fn, run d
// after the last trigger.
type Debouncer struct {
	mu      sync.Mutex
	d       time.Duration
	fn      func()
	timer   *time.Timer
	pending bool
	stopped bool
}

func NewDebouncer(d time.Duration, fn func()) *Debouncer {
	return &Debouncer{d: d, fn: fn}
}

// Trigger (re)arms the timer.
func (b *Debouncer) Trigger() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.pending = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.d, b.fire)
}

func (b *Debouncer) fire() {
	b.mu.Lock()
	if !b.pending || b.stopped {
		b.mu.Unlock()
		return
	}
	b.pending = false
	b.mu.Unlock()
	b.fn()
}

// Flush runs a pending call now.
func (b *Debouncer) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	pending := b.pending && !b.stopped
	b.pending = false
	b.mu.Unlock()
	if pending {
		b.fn()
	}
}

// Stop flushes and disables further triggers.
func (b *Debouncer) Stop() {
	b.Flush()
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}
