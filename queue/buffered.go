package queue

import (
	"context"
	"sync"
	"time"
)

// BufferedQueue collects items and hands them to a handler in batches. A
// batch is flushed once no item has arrived for the quiet duration, or as
// soon as it reaches maxSize. Duplicates within a batch are dropped.
// Batches are handled one at a time, in order; a started flush always runs
// to completion.
type BufferedQueue[T comparable] struct {
	quiet   time.Duration
	maxSize int
	handler func(context.Context, []T)
	ctx     context.Context

	mu     sync.Mutex
	buf    []T
	seen   map[T]struct{}
	timer  *time.Timer
	closed bool

	batches chan []T
	done    chan struct{}
}

// NewBufferedQueue starts a queue. The handler runs with a context that
// carries ctx's values but is never cancelled.
func NewBufferedQueue[T comparable](ctx context.Context, quiet time.Duration, maxSize int, handler func(context.Context, []T)) *BufferedQueue[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	q := &BufferedQueue[T]{
		quiet:   quiet,
		maxSize: maxSize,
		handler: handler,
		ctx:     context.WithoutCancel(ctx),
		seen:    make(map[T]struct{}),
		batches: make(chan []T, 16),
		done:    make(chan struct{}),
	}
	go q.worker()
	return q
}

// Push adds an item. It returns false once the queue is closed.
func (q *BufferedQueue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, dup := q.seen[item]; dup {
		return true
	}
	q.seen[item] = struct{}{}
	q.buf = append(q.buf, item)

	if len(q.buf) >= q.maxSize {
		q.flushLocked()
		return true
	}
	if q.timer == nil {
		q.timer = time.AfterFunc(q.quiet, q.onQuiet)
	} else {
		q.timer.Reset(q.quiet)
	}
	return true
}

// Len returns the number of buffered, not yet flushed items
func (q *BufferedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Close flushes the remaining items and waits for every batch to be handled
func (q *BufferedQueue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.flushLocked()
	q.closed = true
	close(q.batches)
	q.mu.Unlock()

	<-q.done
}

func (q *BufferedQueue[T]) onQuiet() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.flushLocked()
	}
}

func (q *BufferedQueue[T]) flushLocked() {
	if q.timer != nil {
		q.timer.Stop()
	}
	if len(q.buf) == 0 {
		return
	}
	batch := q.buf
	q.buf = nil
	q.seen = make(map[T]struct{})
	q.batches <- batch
}

func (q *BufferedQueue[T]) worker() {
	defer close(q.done)
	for batch := range q.batches {
		q.handler(q.ctx, batch)
	}
}
