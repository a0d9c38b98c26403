package deltakit

import (
	"sync"
	"time"
)

// PendingQueue accumulates computed changes until the next sync cycle.
// It enforces the MaxDeltaAge staleness policy at drain time: changes
// older than the allowed age are dropped rather than transmitted.
type PendingQueue struct {
	mu      sync.Mutex
	changes []DeltaChange
}

// NewPendingQueue returns an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

// Add appends a change to the queue. Nil changes are ignored so callers
// can pass CalculateDelta's result straight through.
func (q *PendingQueue) Add(change *DeltaChange) {
	if change == nil {
		return
	}
	q.mu.Lock()
	q.changes = append(q.changes, *change)
	q.mu.Unlock()
}

// Requeue puts changes back at the front of the queue, preserving their
// original order. Used when a push fails and the changes must be retried
// on the next cycle.
func (q *PendingQueue) Requeue(changes []DeltaChange) {
	if len(changes) == 0 {
		return
	}
	q.mu.Lock()
	q.changes = append(append([]DeltaChange(nil), changes...), q.changes...)
	q.mu.Unlock()
}

// Drain removes and returns all queued changes no older than maxAge,
// along with the count of stale changes that were dropped. A maxAge of
// zero or less disables expiry.
func (q *PendingQueue) Drain(maxAge time.Duration) ([]DeltaChange, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if maxAge <= 0 {
		out := q.changes
		q.changes = nil
		return out, 0
	}

	cutoff := time.Now().Add(-maxAge)
	fresh := make([]DeltaChange, 0, len(q.changes))
	dropped := 0
	for _, c := range q.changes {
		if c.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		fresh = append(fresh, c)
	}
	q.changes = nil
	return fresh, dropped
}

// Len returns the number of queued changes.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}
