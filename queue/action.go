// Package queue provides the bounded-parallelism helpers the runners share.
package queue

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Failure records an item whose action returned an error
type Failure[T any] struct {
	Item T
	Err  error
}

// ActionQueue runs an action over items with at most Limit running at once
type ActionQueue[T any] struct {
	limit int
}

// NewActionQueue creates a queue; limits below 1 are treated as 1
func NewActionQueue[T any](limit int) *ActionQueue[T] {
	if limit < 1 {
		limit = 1
	}
	return &ActionQueue[T]{limit: limit}
}

// Limit returns the concurrency limit
func (q *ActionQueue[T]) Limit() int {
	return q.limit
}

// Run calls fn for every item and waits for all of them. An error from one
// item never stops the others. Items not yet admitted when ctx is done are
// reported with the context error.
func (q *ActionQueue[T]) Run(ctx context.Context, items []T, fn func(context.Context, T) error) []Failure[T] {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []Failure[T]
	)
	fail := func(item T, err error) {
		mu.Lock()
		failures = append(failures, Failure[T]{Item: item, Err: err})
		mu.Unlock()
	}

	g.SetLimit(q.limit)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			fail(item, err)
			continue
		}
		item := item
		g.Go(func() error {
			if err := fn(ctx, item); err != nil {
				fail(item, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}
