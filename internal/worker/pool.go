// Package worker provides a bounded background worker pool with a
// bounded job queue.
package worker

import (
	"context"
	"errors"
	"sync"
)

// Queue capacity per worker.
const queueFactor = 4

// ErrQueueFull is returned by Schedule when the job queue is saturated.
var ErrQueueFull = errors.New("worker queue is full")

// ErrShutdown is returned by Schedule after the pool has been shut down.
var ErrShutdown = errors.New("worker pool is shut down")

// Job is a unit of background work. The context is cancelled when the
// pool shuts down forcefully.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed number of goroutines. Scheduling is
// non-blocking: when the queue is full the caller gets ErrQueueFull
// instead of waiting.
type Pool struct {
	workers int
	queue   chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a pool with the given number of workers and starts them.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workers,
		queue:   make(chan Job, workers*queueFactor),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.queue {
				job(p.ctx)
			}
		}()
	}

	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.workers }

// Schedule enqueues a job without blocking.
func (p *Pool) Schedule(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrShutdown
	}
	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued jobs to finish. If
// the context expires first, running jobs are cancelled and the context
// error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
