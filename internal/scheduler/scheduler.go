package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

const maxSleepCap = 60 * time.Second

// ErrInvalidCron is returned by Every for an expression gronx rejects.
var ErrInvalidCron = errors.New("invalid cron expression")

// Scheduler fires keyed jobs at their trigger time. onTrigger runs on the
// scheduler goroutine and should hand work off quickly.
//
// Add and Remove never block and take effect in call order, so they may be
// called while holding a lock that onTrigger also takes.
type Scheduler struct {
	mu      sync.Mutex
	pending []op
	wake    chan struct{}
	ctx     context.Context
	now     func() time.Time
}

// op is a queued Add (remove false) or Remove.
type op struct {
	job    Job
	remove bool
}

// New creates and starts a Scheduler. The goroutine exits when ctx is
// cancelled; jobs still pending are dropped.
func New(ctx context.Context, onTrigger func(key string)) *Scheduler {
	return newWithClock(ctx, onTrigger, time.Now)
}

func newWithClock(ctx context.Context, onTrigger func(string), now func() time.Time) *Scheduler {
	s := &Scheduler{
		wake: make(chan struct{}, 1),
		ctx:  ctx,
		now:  now,
	}
	go s.run(onTrigger)
	return s
}

func (s *Scheduler) enqueue(o op) {
	if s.ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, o)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) takePending() []op {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := s.pending
	s.pending = nil
	return ops
}

// Add schedules j, replacing a pending job with the same key.
func (s *Scheduler) Add(j Job) {
	s.enqueue(op{job: j})
}

// After schedules a one-shot job d from now.
func (s *Scheduler) After(key string, d time.Duration) {
	s.Add(Job{Key: key, At: s.now().Add(d)})
}

// Every schedules a recurring job at the next occurrence of expr.
func (s *Scheduler) Every(key, expr string) error {
	next, err := NextOccurrence(expr, s.now())
	if err != nil {
		return err
	}
	s.Add(Job{Key: key, At: next, Cron: expr})
	return nil
}

// Remove cancels a pending job by key, including one added by an Add
// call that has not been applied yet.
func (s *Scheduler) Remove(key string) {
	s.enqueue(op{job: Job{Key: key}, remove: true})
}

func (s *Scheduler) run(onTrigger func(string)) {
	h := &jobHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			return nil
		}
		dur := (*h)[0].At.Sub(s.now())
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-s.wake:
			for _, o := range s.takePending() {
				if o.remove {
					h.remove(o.job.Key)
				} else {
					h.push(o.job)
				}
			}
			timerCh = resetTimer()

		case <-timerCh:
			now := s.now()
			var rearm []Job
			for h.Len() > 0 && !(*h)[0].At.After(now) {
				j := h.pop()
				onTrigger(j.Key)
				if j.Cron == "" {
					continue
				}
				if next, err := NextOccurrence(j.Cron, now); err == nil {
					rearm = append(rearm, Job{Key: j.Key, At: next, Cron: j.Cron})
				}
			}
			for _, j := range rearm {
				h.push(j)
			}
			timerCh = resetTimer()
		}
	}
}

// NextOccurrence returns the first time expr fires strictly after start.
func NextOccurrence(expr string, start time.Time) (time.Time, error) {
	if !gronx.IsValid(expr) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidCron, expr)
	}
	return gronx.NextTickAfter(expr, start, false)
}
