package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

// entry is one queued job and the context it will run under.
type entry struct {
	job     Job
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

type ProcessorQueue struct {
	handler Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration
	// grace bounds the wait for cancelled jobs once Shutdown's ctx has ended.
	grace time.Duration

	ch   chan *entry
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool

	liveMu sync.Mutex
	live   map[uuid.UUID]*entry
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan *entry, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(handler Handler, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		handler: handler,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		grace:   5 * time.Second,
		ch:      make(chan *entry, 256),
		live:    make(map[uuid.UUID]*entry),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for e := range q.ch {
					q.run(workerID, e)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, e *entry) {
	id := e.job.Upload.ID()
	defer q.release(id, e)

	q.liveMu.Lock()
	if e.ctx.Err() != nil {
		q.liveMu.Unlock()
		q.logger.Info("skipping cancelled job", "worker_id", workerID, "job_id", id)
		return
	}
	e.started = true
	q.liveMu.Unlock()

	ctx, cancel := context.WithTimeout(e.ctx, q.timeout)
	defer cancel()

	inv, err := q.handler.Process(ctx, e.job.Upload)
	if err != nil {
		q.logger.Error("processing failed", "worker_id", workerID, "job_id", id, "code", common.CodeOf(err), "error", err)
		return
	}
	q.logger.Info("processed file successfully",
		"worker_id", workerID,
		"job_id", id,
		"invoice_id", inv.ID,
		"queued_ms", time.Since(e.job.SubmittedAt).Milliseconds(),
	)
}

// release drops e from the live set unless a newer entry for id replaced it.
func (q *ProcessorQueue) release(id uuid.UUID, e *entry) {
	e.cancel()
	q.liveMu.Lock()
	if q.live[id] == e {
		delete(q.live, id)
	}
	q.liveMu.Unlock()
}

func (q *ProcessorQueue) newEntry(job Job) *entry {
	id := job.Upload.ID()
	ctx := common.WithJobID(context.Background(), id.String())
	ctx = common.WithUserID(ctx, job.Upload.UserID())
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}
	ctx, cancel := context.WithCancel(ctx)
	e := &entry{job: job, ctx: ctx, cancel: cancel}

	q.liveMu.Lock()
	if prev, ok := q.live[id]; ok {
		prev.cancel()
	}
	q.live[id] = e
	q.liveMu.Unlock()
	return e
}

// Enqueue blocks while the buffer is full, until ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.Upload.ID())
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	e := q.newEntry(job)
	select {
	case q.ch <- e:
		q.logger.Info("queued file for processing", "job_id", job.Upload.ID(), "attempt", job.Upload.Snapshot().Attempt)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "job_id", job.Upload.ID())
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		q.release(job.Upload.ID(), e)
		return ctx.Err()
	}
}

// Cancel aborts job id. A running job fails at its next suspension point; a job still
// waiting in the buffer is failed immediately and skipped by the workers.
func (q *ProcessorQueue) Cancel(id uuid.UUID) bool {
	q.liveMu.Lock()
	e, ok := q.live[id]
	q.liveMu.Unlock()
	if !ok {
		return false
	}
	started := q.abort(e, context.Canceled)
	q.logger.Info("job cancelled", "job_id", id, "started", started)
	return true
}

// abort cancels e's context and, when no worker has picked e up yet, fails the job itself.
func (q *ProcessorQueue) abort(e *entry, cause error) bool {
	q.liveMu.Lock()
	e.cancel()
	started := e.started
	q.liveMu.Unlock()
	if started {
		return true
	}
	if err := e.job.Upload.Fail(common.Aborted(cause)); err != nil {
		q.logger.Warn("cancel: job already finished", "job_id", e.job.Upload.ID(), "error", err)
	}
	return false
}

// cancelAll aborts every queued and running job.
func (q *ProcessorQueue) cancelAll(cause error) int {
	q.liveMu.Lock()
	entries := make([]*entry, 0, len(q.live))
	for _, e := range q.live {
		entries = append(entries, e)
	}
	q.liveMu.Unlock()
	for _, e := range entries {
		q.abort(e, cause)
	}
	return len(entries)
}

// Shutdown stops accepting work and waits for queued jobs to drain. If ctx ends first every
// remaining job is cancelled, so none is left in an intermediate state.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
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
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
		return
	case <-ctx.Done():
	}

	n := q.cancelAll(ctx.Err())
	q.logger.Warn("shutdown interrupted by context, cancelling jobs", "jobs", n)
	select {
	case <-done:
		q.logger.Info("cancelled jobs settled, shutdown complete")
	case <-time.After(q.grace):
		q.logger.Error("workers did not stop within grace period", "grace", q.grace)
	}
}
