package scheduler

import "container/heap"

// jobHeap implements container/heap.Interface, earliest At first.
type jobHeap []Job

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(Job))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// push adds j, dropping any pending job with the same key.
func (h *jobHeap) push(j Job) {
	h.remove(j.Key)
	heap.Push(h, j)
}

// pop removes the earliest job. Panics if the heap is empty.
func (h *jobHeap) pop() Job {
	return heap.Pop(h).(Job)
}

// remove drops the job with the given key and reports whether it existed.
func (h *jobHeap) remove(key string) bool {
	for i, j := range *h {
		if j.Key == key {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
