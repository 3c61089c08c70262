package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	fired map[string]int
}

func newRecorder() *recorder {
	return &recorder{fired: make(map[string]int)}
}

func (r *recorder) trigger(key string) {
	r.mu.Lock()
	r.fired[key]++
	r.mu.Unlock()
}

func (r *recorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired[key]
}

func TestScheduler_AfterFires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newRecorder()
	s := New(ctx, r.trigger)
	s.After("retry/a", 50*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	if r.count("retry/a") != 1 {
		t.Fatalf("expected retry/a to fire once, got %d", r.count("retry/a"))
	}
}

func TestScheduler_RemoveBeforeFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newRecorder()
	s := New(ctx, r.trigger)
	s.After("retry/b", 300*time.Millisecond)
	s.Remove("retry/b")

	time.Sleep(500 * time.Millisecond)
	if r.count("retry/b") != 0 {
		t.Fatal("expected retry/b not to fire after Remove")
	}
}

func TestScheduler_ReAddReplaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newRecorder()
	s := New(ctx, r.trigger)
	s.After("k", 100*time.Millisecond)
	s.After("k", 150*time.Millisecond)

	time.Sleep(400 * time.Millisecond)
	if r.count("k") != 1 {
		t.Fatalf("expected a single firing, got %d", r.count("k"))
	}
}

func TestScheduler_ShutdownViaContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := newRecorder()
	s := New(ctx, r.trigger)
	s.After("late", 200*time.Millisecond)
	cancel()

	time.Sleep(400 * time.Millisecond)
	if r.count("late") != 0 {
		t.Fatal("expected no firing after context cancel")
	}
	// Add must not block once the scheduler is gone.
	s.Add(Job{Key: "x", At: time.Now()})
}

func TestScheduler_PastJobFiresImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newRecorder()
	s := New(ctx, r.trigger)
	s.Add(Job{Key: "past", At: time.Now().Add(-time.Hour)})

	time.Sleep(100 * time.Millisecond)
	if r.count("past") != 1 {
		t.Fatal("expected a job in the past to fire right away")
	}
}

func TestScheduler_CronRearms(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A clock that jumps a minute on every call makes each re-armed
	// occurrence already due.
	var mu sync.Mutex
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}

	r := newRecorder()
	s := newWithClock(ctx, r.trigger, now)
	if err := s.Every("policy", "* * * * *"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.count("policy") < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.count("policy") < 3 {
		t.Fatalf("expected the cron job to re-arm, fired %d times", r.count("policy"))
	}
}

func TestScheduler_EveryRejectsBadExpr(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(ctx, func(string) {})
	err := s.Every("bad", "not a cron")
	if !errors.Is(err, ErrInvalidCron) {
		t.Fatalf("expected ErrInvalidCron, got %v", err)
	}
}

func TestNextOccurrence(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC)},
		{"0 22 * * *", time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)},
		{"0 0 * * *", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := NextOccurrence(tt.expr, start)
		if err != nil {
			t.Fatalf("%s: %v", tt.expr, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.expr, tt.want, got)
		}
	}
}

func TestScheduler_RemoveAfterAddIsApplied(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newRecorder()
	s := New(ctx, r.trigger)
	for i := 0; i < 200; i++ {
		s.After("retry/c", 20*time.Millisecond)
		s.Remove("retry/c")
	}
	s.After("retry/d", 20*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	if r.count("retry/c") != 0 {
		t.Fatalf("expected retry/c to stay removed, fired %d times", r.count("retry/c"))
	}
	if r.count("retry/d") != 1 {
		t.Fatalf("expected retry/d to fire once, got %d", r.count("retry/d"))
	}
}

func TestScheduler_AddFromTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newRecorder()
	var s *Scheduler
	done := make(chan struct{})
	s = New(ctx, func(key string) {
		r.trigger(key)
		if key != "start" {
			return
		}
		// more than any channel buffer would hold
		for i := 0; i < 500; i++ {
			s.After("late", time.Hour)
		}
		s.Remove("late")
		s.After("next", 0)
		close(done)
	})
	s.Add(Job{Key: "start", At: time.Now()})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Add from the trigger callback blocked")
	}
	deadline := time.Now().Add(2 * time.Second)
	for r.count("next") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.count("next") != 1 {
		t.Fatalf("expected next to fire once, got %d", r.count("next"))
	}
}
