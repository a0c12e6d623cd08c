package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("queue is shutting down")

// WorkerQueue runs jobs on a fixed pool of workers and publishes one Result
// per job on Results. Results is closed once Shutdown has drained the pool.
type WorkerQueue struct {
	handle  Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch      chan Job
	results chan Result
	wg      sync.WaitGroup
	once    sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*WorkerQueue)

func WithWorkers(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *WorkerQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewWorkerQueue(handle Handler, logger *slog.Logger, opts ...Option) *WorkerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &WorkerQueue{
		handle:  handle,
		logger:  logger,
		workers: 2,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.results = make(chan Result, cap(q.ch))
	q.start()
	return q
}

// Results streams finished jobs in completion order.
func (q *WorkerQueue) Results() <-chan Result { return q.results }

func (q *WorkerQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("async.worker.start", "worker_id", workerID)

				for job := range q.ch {
					start := time.Now()
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					lines, err := q.handle(ctx, job)
					cancel()

					elapsed := time.Since(start)
					if err != nil {
						q.logger.Error("async.job.failed", "worker_id", workerID, "path", job.Path, "trace_id", job.TraceID, "error", err)
					} else {
						q.logger.Info("async.job.done", "worker_id", workerID, "path", job.Path, "lines", len(lines), "elapsed_ms", elapsed.Milliseconds())
					}
					q.results <- Result{Job: job, Lines: lines, Err: err, Elapsed: elapsed}
				}

				q.logger.Debug("async.worker.stop", "worker_id", workerID)
			}(i + 1)
		}
		go func() {
			q.wg.Wait()
			close(q.results)
		}()
	})
}

// Enqueue blocks while the queue is full. A zero SubmittedAt or empty TraceID
// is filled in.
func (q *WorkerQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("async.enqueue.closed", "path", job.Path)
		return ErrClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("async.enqueue", "path", job.Path, "trace_id", job.TraceID)
		return nil
	default:
	}
	q.logger.Warn("async.queue.full", "path", job.Path)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish, or for
// ctx to end. The caller must keep reading Results while it waits.
func (q *WorkerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("async.shutdown.interrupted", "error", ctx.Err())
	case <-done:
		q.logger.Info("async.shutdown.drained")
	}
}
