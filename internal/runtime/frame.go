// Package runtime implements C5 (Camera Runtime) and C6 (Detection
// Runtime): the per-camera capture/reconnect state machine, the
// single-slot latest-frame buffer, the sampling/annotation/violation
// worker, and the supervisor that owns both per camera_id.
//
// The state machine, ticker-driven backoff, and worker-pool shape are
// grounded on internal/health/scheduler.go's consecutive-failure backoff
// idiom, generalized from a periodic health-check scheduler into a
// long-lived per-camera capture loop (spec.md §4.5).
package runtime

import (
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Frame is one captured image plus the wall-clock time it was captured,
// used to enforce spec.md §8's "capture timestamps are monotonically
// non-decreasing" property on the slot.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// Slot is the single-slot "latest frame" buffer spec.md §4.5 and §5
// describe: publishing overwrites the previous frame atomically, and a
// reader always observes either no frame or a complete one, never a torn
// image. Backed by atomic.Pointer so readers never take a lock.
type Slot struct {
	v atomic.Pointer[Frame]
}

// Store publishes f, overwriting whatever was previously there.
func (s *Slot) Store(f *Frame) { s.v.Store(f) }

// Load returns the most recently published frame, or nil if none has been
// published yet.
func (s *Slot) Load() *Frame { return s.v.Load() }

// ResultQueue is the per-camera bounded FIFO of DetectionResults spec.md
// §4.6 step 5 and §5 describe: capacity 10, drop-oldest on full. A plain
// channel can't implement drop-oldest without an extra goroutine, so this
// is a small mutex-guarded ring instead, matching the "bounded FIFO,
// drop-oldest" resource-table entry in spec.md §5 directly rather than
// adding a drain goroutine per camera.
type ResultQueue struct {
	mu       sync.Mutex
	items    []DetectionResult
	capacity int
}

func NewResultQueue(capacity int) *ResultQueue {
	if capacity <= 0 {
		capacity = 10
	}
	return &ResultQueue{capacity: capacity}
}

// Offer enqueues r, dropping the oldest entry first if the queue is full
// (spec.md §4.6 step 5, §8 "after 20 rapid events with no reader, exactly
// 10 remain, and they are the most-recent 10"). Reports whether a drop
// occurred so callers can track it (e.g. metrics.DetectionQueueDropsTotal).
func (q *ResultQueue) Offer(r DetectionResult) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, r)
	return dropped
}

// Poll dequeues the oldest result, or returns ok=false if empty. Never
// blocks (spec.md §4.9 GET /detection-results/{camid}: "never blocks").
func (q *ResultQueue) Poll() (DetectionResult, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return DetectionResult{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r, true
}

// Len reports the current queue depth (exposed for /metrics).
func (q *ResultQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain empties the queue, releasing any held results (spec.md §4.6
// Cancellation: "the result queue is drained and released").
func (q *ResultQueue) Drain() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
