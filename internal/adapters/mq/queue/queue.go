// Package queue carries engine commands to the goroutine that drives a
// session. Each request may carry a reply channel for its Result.
package queue

import (
	"context"
	"sync"

	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/pkg/metrics"
)

const defaultCapacity = 256

// Request is one queued command. Reply, when set, receives exactly one
// Result and must have room for it.
type Request struct {
	Cmd   engine.Command
	Reply chan engine.Result
}

// Queue is a bounded command queue with non-blocking enqueue.
type Queue interface {
	// Enqueue adds req. It returns ErrFull or ErrClosed instead of blocking.
	Enqueue(ctx context.Context, req Request) error

	// Dequeue returns the channel the driver receives from. It is closed
	// after Close once drained.
	Dequeue() <-chan Request

	Len() int
	Cap() int

	// Close stops accepting requests. Calling it twice is safe.
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	requests chan Request
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with the given options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.requests = make(chan Request, q.capacity)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, req Request) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.requests <- req:
		metrics.RecordQueueEnqueue()
		return nil
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return ErrFull
	}
}

func (q *InMemoryQueue) Dequeue() <-chan Request { return q.requests }
func (q *InMemoryQueue) Len() int                { return len(q.requests) }
func (q *InMemoryQueue) Cap() int                { return q.capacity }

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.requests)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Call enqueues cmd and waits for its Result.
func Call(ctx context.Context, q Queue, cmd engine.Command) (engine.Result, error) {
	reply := make(chan engine.Result, 1)
	if err := q.Enqueue(ctx, Request{Cmd: cmd, Reply: reply}); err != nil {
		return engine.Result{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	}
}
