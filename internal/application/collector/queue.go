package collector

import (
	"sync"

	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"
)

// BatchQueue holds telemetry records awaiting a batch send. Flushing hands
// the whole pending slice to deliver and leaves the queue empty.
type BatchQueue struct {
	mu        sync.Mutex
	events    []telemetry.Event
	batchSize int
	deliver   func([]telemetry.Event)
}

// NewBatchQueue creates a queue that flushes once batchSize records are
// pending.
func NewBatchQueue(batchSize int, deliver func([]telemetry.Event)) *BatchQueue {
	return &BatchQueue{
		batchSize: batchSize,
		deliver:   deliver,
	}
}

// Enqueue appends event and flushes when the threshold is reached.
func (q *BatchQueue) Enqueue(event telemetry.Event) {
	q.mu.Lock()
	q.events = append(q.events, event)
	full := len(q.events) >= q.batchSize
	q.mu.Unlock()

	if full {
		q.Flush()
	}
}

// Flush delivers everything pending. An empty queue is a no-op.
func (q *BatchQueue) Flush() int {
	q.mu.Lock()
	batch := q.events
	q.events = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	q.deliver(batch)
	return len(batch)
}

// Requeue puts a failed batch back in front of anything queued since.
func (q *BatchQueue) Requeue(batch []telemetry.Event) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]telemetry.Event, 0, len(batch)+len(q.events))
	merged = append(merged, batch...)
	q.events = append(merged, q.events...)
}

// Len returns the number of pending records.
func (q *BatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Snapshot returns a copy of the pending records in send order.
func (q *BatchQueue) Snapshot() []telemetry.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]telemetry.Event(nil), q.events...)
}
