package utils

import (
	"math/rand"
	"sync"
	"time"
)

// WorkerPool bounds the number of concurrently running jobs. Job submission
// blocks while all slots are busy, so callers submit in order and the pool
// starts queued work as slots free up.
type WorkerPool struct {
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool with the given concurrency.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		semaphore: make(chan struct{}, maxWorkers),
	}
}

// Submit enqueues a job for execution, blocking until a slot is free.
func (wp *WorkerPool) Submit(job func()) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()
		job()
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Pacer produces randomized delays between browser actions to reduce
// detection risk. The delay is a tunable, not a correctness requirement.
type Pacer struct {
	min time.Duration
	max time.Duration
}

// NewPacer creates a Pacer with the given delay bounds. Swapped bounds are
// corrected rather than rejected.
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		min, max = max, min
	}
	return &Pacer{min: min, max: max}
}

// Delay returns a random duration in [min, max].
func (p *Pacer) Delay() time.Duration {
	if p.max <= p.min {
		return p.min
	}
	return p.min + time.Duration(rand.Int63n(int64(p.max-p.min)))
}

// StringSet is a thread-safe set used to track visited place URLs within a
// scrape session.
type StringSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewStringSet creates an empty StringSet.
func NewStringSet() *StringSet {
	return &StringSet{seen: make(map[string]struct{})}
}

// Add returns true if the value was newly added, false if already present.
func (s *StringSet) Add(v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[v]; exists {
		return false
	}
	s.seen[v] = struct{}{}
	return true
}

// Contains returns true if the value has already been added.
func (s *StringSet) Contains(v string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[v]
	return exists
}

// Size returns the number of unique values tracked.
func (s *StringSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
