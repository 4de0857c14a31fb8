package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/async"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
)

// JobRecorder persists job snapshots as they change.
type JobRecorder interface {
	Upsert(ctx context.Context, snap upload.Snapshot) error
}

// Manager accepts uploads, queues them and answers status queries.
type Manager struct {
	tracker  *Tracker
	queue    async.Queue
	recorder JobRecorder
	log      *slog.Logger

	recordTimeout time.Duration
}

// NewManager wires a queue and an optional recorder.
func NewManager(queue async.Queue, recorder JobRecorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tracker:       NewTracker(),
		queue:         queue,
		recorder:      recorder,
		log:           logger,
		recordTimeout: 5 * time.Second,
	}
}

// Submit creates a job for src and queues it.
func (m *Manager) Submit(ctx context.Context, userID string, src entity.SourceFile) (upload.Snapshot, error) {
	if userID == "" {
		return upload.Snapshot{}, fmt.Errorf("user id is required: %w", common.ErrInvalidInput)
	}
	if src.ReceivedAt.IsZero() {
		src.ReceivedAt = time.Now().UTC()
	}
	job := upload.NewJob(userID, src)
	if m.recorder != nil {
		job.OnTransition(m.record)
		m.record(job.Snapshot())
	}
	m.tracker.Add(job)

	if err := m.queue.Enqueue(ctx, async.Job{Upload: job, RequestID: common.RequestIDFromContext(ctx)}); err != nil {
		m.log.Error("pipeline.submit.enqueue_failed", "job_id", job.ID(), "error", err)
		_ = job.Fail(common.Aborted(err))
		return job.Snapshot(), fmt.Errorf("enqueue job %s: %w", job.ID(), err)
	}
	m.log.Info("pipeline.submit", "job_id", job.ID(), "user_id", userID, "file", src.Name, "size", src.Size)
	return job.Snapshot(), nil
}

func (m *Manager) Status(id uuid.UUID) (upload.Snapshot, error) {
	job, ok := m.tracker.Get(id)
	if !ok {
		return upload.Snapshot{}, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	return job.Snapshot(), nil
}

func (m *Manager) List(userID string) []upload.Snapshot {
	return m.tracker.List(userID)
}

// Retry moves a FAILED job back to NOT_UPLOADED and queues it again.
func (m *Manager) Retry(ctx context.Context, id uuid.UUID) (upload.Snapshot, error) {
	job, ok := m.tracker.Get(id)
	if !ok {
		return upload.Snapshot{}, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	if st := job.Status(); st != constants.StatusFailed {
		return job.Snapshot(), fmt.Errorf("job %s is %s, only failed uploads can be retried: %w", id, st, common.ErrFailedPrecondition)
	}
	if err := job.Retry(); err != nil {
		return job.Snapshot(), err
	}
	if err := m.queue.Enqueue(ctx, async.Job{Upload: job, RequestID: common.RequestIDFromContext(ctx)}); err != nil {
		_ = job.Fail(common.Aborted(err))
		return job.Snapshot(), fmt.Errorf("enqueue job %s: %w", id, err)
	}
	m.log.Info("pipeline.retry", "job_id", id, "attempt", job.Snapshot().Attempt)
	return job.Snapshot(), nil
}

// Cancel aborts a queued or running job. A queued job is FAILED on return; a running one
// reaches FAILED with upload-aborted once its current stage yields.
func (m *Manager) Cancel(id uuid.UUID) (upload.Snapshot, error) {
	job, ok := m.tracker.Get(id)
	if !ok {
		return upload.Snapshot{}, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	if st := job.Status(); st.Terminal() || st == constants.StatusFailed {
		return job.Snapshot(), fmt.Errorf("job %s is %s and cannot be cancelled: %w", id, st, common.ErrFailedPrecondition)
	}
	if !m.queue.Cancel(id) {
		return job.Snapshot(), fmt.Errorf("job %s is not queued: %w", id, common.ErrFailedPrecondition)
	}
	m.log.Info("pipeline.cancel", "job_id", id, "status", job.Status())
	return job.Snapshot(), nil
}

func (m *Manager) record(snap upload.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), m.recordTimeout)
	defer cancel()
	if err := m.recorder.Upsert(ctx, snap); err != nil {
		m.log.Warn("pipeline.record_failed", "job_id", snap.ID, "status", snap.Status, "error", err)
	}
}
