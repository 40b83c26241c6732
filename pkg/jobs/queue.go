package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by TryEnqueue when the buffer has no free capacity.
var ErrQueueFull = errors.New("queue full")

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. The queue gives the job up on
// its first failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// GiveUpFunc observes a job's last failure, after retries are exhausted or
// the handler returned a Permanent error.
type GiveUpFunc func(context.Context, Job, error)

// QueueConfig configures worker pool behaviour. Retry n waits
// RetryDelay * 2^(n-1), never more than MaxRetryDelay.
type QueueConfig struct {
	Workers       int
	BufferSize    int
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	OnGiveUp      GiveUpFunc
	Logger        *zap.Logger
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler

	workers       int
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	onGiveUp      GiveUpFunc
	logger        *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * cfg.RetryDelay
	}
	if cfg.OnGiveUp == nil {
		cfg.OnGiveUp = func(context.Context, Job, error) {}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:          name,
		handler:       handler,
		workers:       cfg.Workers,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		onGiveUp:      cfg.OnGiveUp,
		logger:        cfg.Logger.With(zap.String("queue", name)),
		jobs:          make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped", zap.Int("dropped", len(q.jobs)))
}

// Enqueue pushes a job, blocking while the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	return q.push(job, true)
}

// TryEnqueue pushes a job or fails with ErrQueueFull when the buffer is full.
func (q *Queue) TryEnqueue(job Job) error {
	return q.push(job, false)
}

func (q *Queue) push(job Job, wait bool) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("queue %s stopped: %w", q.name, err)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	if !wait {
		select {
		case q.jobs <- job:
			return nil
		default:
			return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
		}
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

// Pending is the number of buffered jobs not yet picked up by a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.handler(q.ctx, job); err != nil {
				q.handleFailure(workerID, job, err)
			}
		}
	}
}

// backoff is the wait before the given retry attempt, counted from 1.
func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.retryDelay
	for i := 1; i < attempt && delay < q.maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > q.maxRetryDelay {
		delay = q.maxRetryDelay
	}
	return delay
}

func (q *Queue) handleFailure(workerID int, job Job, err error) {
	fields := []zap.Field{zap.Int("worker", workerID), zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err)}
	var permanent *permanentError
	if errors.As(err, &permanent) {
		q.logger.Warn("job failed permanently", fields...)
		q.onGiveUp(q.ctx, job, permanent.err)
		return
	}
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Error("job exceeded retries", fields...)
		q.onGiveUp(q.ctx, job, err)
		return
	}
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying", append(fields, zap.Int("attempt", job.Attempt), zap.Duration("delay", delay))...)

	go func(j Job) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Error("failed to requeue job", zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}
