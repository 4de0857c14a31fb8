package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has begun.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is the smallest useful unit of queued work.
type Job struct {
	Upload      *upload.Job
	SubmittedAt time.Time
	RequestID   string
}

// Handler processes one upload job to completion.
type Handler interface {
	Process(ctx context.Context, job *upload.Job) (*entity.Invoice, error)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Cancel aborts a queued or running job. It reports false when the queue does not hold id.
	Cancel(id uuid.UUID) bool
	Shutdown(ctx context.Context)
}
