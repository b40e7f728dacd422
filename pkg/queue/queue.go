// Package queue implements the two bounded FIFO job queues of C4: a
// message queue for chat-bearing requests and an audio-only queue for
// pure TTS jobs, each served by its own fixed worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

// Job is the tagged-variant envelope shared by every request kind (§9
// "Polymorphism"): the handler owns all session mutation and provider
// calls.
type Job struct {
	Kind     string
	ClientIP string
	Handler  func(ctx context.Context) error
}

// Queue is a bounded channel-backed job queue with a fixed worker pool.
// A panicking job is recovered and logged, and its worker keeps running;
// a failed job is logged but never halts the queue (§4.4).
type Queue struct {
	name    string
	jobs    chan Job
	logger  orchestrator.Logger
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New starts workers worker goroutines reading from a queue of the given
// capacity. name identifies the queue in log lines.
func New(ctx context.Context, name string, capacity, workers int, logger orchestrator.Logger) *Queue {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	if capacity <= 0 {
		capacity = 256
	}
	if workers <= 0 {
		workers = 1
	}

	qctx, cancel := context.WithCancel(ctx)
	q := &Queue{
		name:   name,
		jobs:   make(chan Job, capacity),
		logger: logger,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.runWorker(qctx, i)
	}
	return q
}

func (q *Queue) runWorker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.execute(ctx, job, id)
		}
	}
}

func (q *Queue) execute(ctx context.Context, job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("worker panic recovered", "queue", q.name, "worker", workerID, "kind", job.Kind, "panic", r)
		}
	}()
	if err := job.Handler(ctx); err != nil {
		q.logger.Warn("job failed", "queue", q.name, "kind", job.Kind, "client_ip", job.ClientIP, "error", err)
	}
}

// Enqueue is non-blocking from ingress: it either accepts the job
// immediately or reports the queue is full (service-busy, §5
// "Backpressure").
func (q *Queue) Enqueue(job Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return orchestrator.Newf(orchestrator.ProviderFailure, "%s queue is full", q.name)
	}
}

// Drain stops accepting new jobs and waits for in-flight workers to
// finish, up to the context deadline (shutdown sequence, §9).
func (q *Queue) Drain(ctx context.Context) error {
	close(q.jobs)
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}
