package checksum

import (
	"context"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"
)

// Job describes one verification.
type Job struct {
	Key       string
	Path      string
	Algorithm Algorithm
	Expected  string
}

// Result is delivered once per accepted Job.
type Result struct {
	Job
	Actual string
	State  State
	Err    error
}

// Verifier hashes files on worker goroutines, bounded by a weighted
// semaphore, with at most one job in flight per key.
type Verifier struct {
	fs       afero.Fs
	sem      *semaphore.Weighted
	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// NewVerifier allows up to workers concurrent hashes.
func NewVerifier(fs afero.Fs, workers int64) *Verifier {
	if workers <= 0 {
		workers = 1
	}
	return &Verifier{
		fs:       fs,
		sem:      semaphore.NewWeighted(workers),
		inflight: make(map[string]context.CancelFunc),
	}
}

// Submit schedules job and returns false when a job with the same key is
// already running. onStart fires when a worker slot is acquired and done
// fires with the result; both run on the worker goroutine.
func (v *Verifier) Submit(job Job, onStart func(), done func(Result)) bool {
	v.mu.Lock()
	if _, busy := v.inflight[job.Key]; busy {
		v.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.inflight[job.Key] = cancel
	v.wg.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.wg.Done()
		defer func() {
			v.mu.Lock()
			delete(v.inflight, job.Key)
			v.mu.Unlock()
			cancel()
		}()
		res := Result{Job: job}
		if err := v.sem.Acquire(ctx, 1); err != nil {
			res.State, res.Err = Failed, err
			done(res)
			return
		}
		defer v.sem.Release(1)
		if onStart != nil {
			onStart()
		}
		res.Actual, res.Err = Sum(ctx, v.fs, job.Path, job.Algorithm)
		if res.Err != nil {
			res.State = Failed
		} else {
			res.State = Outcome(job.Expected, res.Actual)
		}
		done(res)
	}()
	return true
}

// Busy reports whether a job with key is in flight.
func (v *Verifier) Busy(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.inflight[key]
	return ok
}

// Cancel aborts the job with key, if any. Its result reports Failed.
func (v *Verifier) Cancel(key string) {
	v.mu.Lock()
	cancel := v.inflight[key]
	v.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every submitted job has delivered its result.
func (v *Verifier) Wait() {
	v.wg.Wait()
}
