// Package worker runs fire-and-forget background jobs on a bounded queue.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job is a unit of background work. Run receives a context bounded by the
// queue's job timeout and detached from any request.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// OnDrop is called for every job rejected because the queue is full or closed.
	OnDrop func()
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Pending   int    `json:"pending"`
}

// Queue is a fixed pool of workers reading from a bounded channel.
// Submit never blocks the caller.
type Queue struct {
	name       string
	jobs       chan Job
	jobTimeout time.Duration
	onDrop     func()
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Uint64
	dropped   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewQueue starts cfg.Workers goroutines. Call Shutdown to stop them.
func NewQueue(name string, cfg Config, logger *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Second
	}

	q := &Queue{
		name:       name,
		jobs:       make(chan Job, cfg.QueueSize),
		jobTimeout: cfg.JobTimeout,
		onDrop:     cfg.OnDrop,
		logger:     logger.With("queue", name),
	}

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.logger.Debug("Worker pool spawned",
		"num_workers", cfg.Workers,
		"queue_size", cfg.QueueSize,
	)
	return q
}

// Submit enqueues job and reports whether it was accepted. When the queue is
// full or shut down the job is dropped.
func (q *Queue) Submit(job Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.closed {
		select {
		case q.jobs <- job:
			q.submitted.Add(1)
			return true
		default:
		}
	}

	q.dropped.Add(1)
	if q.onDrop != nil {
		q.onDrop()
	}
	q.logger.Warn("Background job dropped",
		"job", job.Name,
		"closed", q.closed,
	)
	return false
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.execute(workerID, job)
	}
	q.logger.Debug("Worker exiting",
		"worker_id", workerID,
		"reason", "job_queue_closed",
	)
}

func (q *Queue) execute(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.logger.Error("Job panicked",
				"worker_id", workerID,
				"job", job.Name,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()

	if err := job.Run(ctx); err != nil {
		q.failed.Add(1)
		q.logger.Error("Job execution failed",
			"worker_id", workerID,
			"job", job.Name,
			"error", err,
		)
		return
	}
	q.completed.Add(1)
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to expire.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Debug("Worker pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker queue %s: %w", q.name, ctx.Err())
	}
}

func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.submitted.Load(),
		Dropped:   q.dropped.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Pending:   len(q.jobs),
	}
}
