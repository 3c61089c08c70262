package scheduler

import (
	"testing"
	"time"
)

func TestHeapPushPopOrdering(t *testing.T) {
	h := &jobHeap{}
	base := time.Now()

	h.push(Job{Key: "c", At: base.Add(3 * time.Hour)})
	h.push(Job{Key: "a", At: base.Add(1 * time.Hour)})
	h.push(Job{Key: "b", At: base.Add(2 * time.Hour)})

	for _, want := range []string{"a", "b", "c"} {
		if got := h.pop().Key; got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}

func TestHeapPushReplacesKey(t *testing.T) {
	h := &jobHeap{}
	base := time.Now()

	h.push(Job{Key: "retry/1", At: base.Add(time.Hour)})
	h.push(Job{Key: "retry/1", At: base.Add(time.Minute)})

	if h.Len() != 1 {
		t.Fatalf("expected 1 job, got %d", h.Len())
	}
	if got := h.pop().At; !got.Equal(base.Add(time.Minute)) {
		t.Errorf("expected the later push to win, got %v", got)
	}
}

func TestHeapRemove(t *testing.T) {
	h := &jobHeap{}
	base := time.Now()
	h.push(Job{Key: "a", At: base})
	h.push(Job{Key: "b", At: base.Add(time.Second)})

	if !h.remove("a") {
		t.Fatal("expected a to be removed")
	}
	if h.remove("a") {
		t.Fatal("expected second remove to report false")
	}
	if h.Len() != 1 || h.pop().Key != "b" {
		t.Fatal("expected only b to remain")
	}
}
