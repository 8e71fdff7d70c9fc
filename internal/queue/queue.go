package queue

import (
	"context"
	"errors"
)

// ErrShutdown is returned when processing on a queue that has been shut down
var ErrShutdown = errors.New("queue has been shutdown")

// Handler processes a single job
type Handler[T, R any] func(ctx context.Context, data T) (R, error)

// Queue is a worker queue with a fixed amount of workers
type Queue[T, R any] struct {
	workers int
	handler Handler[T, R]
	queue   chan job[T, R]
	ctx     context.Context
}

type job[T, R any] struct {
	ctx    context.Context
	data   T
	result chan jobResult[R]
}

type jobResult[R any] struct {
	result R
	err    error
}

// New creates a new Queue with the specified amount of workers.
// The queue shuts down when ctx is canceled.
func New[T, R any](ctx context.Context, workers int, handler Handler[T, R]) *Queue[T, R] {
	return &Queue[T, R]{
		workers: workers,
		handler: handler,
		queue:   make(chan job[T, R]),
		ctx:     ctx,
	}
}

// Run starts the workers and blocks until the queue is shut down
func (q *Queue[T, R]) Run() {
	done := make(chan struct{})
	for i := 0; i < q.workers; i++ {
		go func() {
			q.worker()
			done <- struct{}{}
		}()
	}

	for i := 0; i < q.workers; i++ {
		<-done
	}
}

func (q *Queue[T, R]) worker() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case j := <-q.queue:
			// The caller may have given up while the job was waiting
			if err := j.ctx.Err(); err != nil {
				j.result <- jobResult[R]{err: err}
				continue
			}

			result, err := q.handler(j.ctx, j.data)
			j.result <- jobResult[R]{
				result: result,
				err:    err,
			}
		}
	}
}

// Process adds a job to the queue, waits for it to process, and returns the result
func (q *Queue[T, R]) Process(ctx context.Context, data T) (R, error) {
	var zero R

	if q.ctx.Err() != nil {
		return zero, ErrShutdown
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	// Buffered so a worker never blocks on a caller that went away
	resultChan := make(chan jobResult[R], 1)

	select {
	case q.queue <- job[T, R]{ctx: ctx, data: data, result: resultChan}:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.ctx.Done():
		return zero, ErrShutdown
	}

	select {
	case result := <-resultChan:
		if result.err != nil {
			return zero, result.err
		}

		return result.result, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
