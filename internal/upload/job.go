package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// Listener is notified after every applied transition.
type Listener func(Snapshot)

// Job is one file being ingested. All mutation goes through its methods.
type Job struct {
	mu sync.RWMutex

	id        uuid.UUID
	userID    string
	source    entity.SourceFile
	status    constants.UploadStatus
	progress  int
	attempt   int
	err       *common.AppError
	objectKey string
	invoiceID *uuid.UUID

	raster     *entity.ImageArtifact
	compressed *entity.ImageArtifact

	createdAt time.Time
	updatedAt time.Time

	listeners []Listener
}

// Snapshot is a point-in-time copy of a job's externally visible state.
type Snapshot struct {
	ID        uuid.UUID              `json:"id"`
	UserID    string                 `json:"user_id"`
	FileName  string                 `json:"file_name"`
	MIMEType  string                 `json:"mime_type"`
	Size      int64                  `json:"size"`
	Status    constants.UploadStatus `json:"status"`
	Progress  int                    `json:"progress"`
	Attempt   int                    `json:"attempt"`
	ErrorCode string                 `json:"error_code,omitempty"`
	ErrorMsg  string                 `json:"error_message,omitempty"`
	ObjectKey string                 `json:"object_key,omitempty"`
	InvoiceID *uuid.UUID             `json:"invoice_id,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NewJob creates a job in NOT_UPLOADED owning src.
func NewJob(userID string, src entity.SourceFile) *Job {
	now := time.Now().UTC()
	return &Job{
		id:        uuid.New(),
		userID:    userID,
		source:    src,
		status:    constants.StatusNotUploaded,
		attempt:   1,
		createdAt: now,
		updatedAt: now,
	}
}

func (j *Job) ID() uuid.UUID  { return j.id }
func (j *Job) UserID() string { return j.userID }

func (j *Job) Source() entity.SourceFile {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.source
}

func (j *Job) Status() constants.UploadStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) Progress() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// Err is the failure recorded in FAILED, nil otherwise.
func (j *Job) Err() *common.AppError {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// OnTransition registers l; listeners run synchronously after the lock is released.
func (j *Job) OnTransition(l Listener) {
	j.mu.Lock()
	j.listeners = append(j.listeners, l)
	j.mu.Unlock()
}

// Fire applies e. Failing or retrying goes through Fail and Retry instead.
func (j *Job) Fire(e Event) error {
	if e == EventFail || e == EventRetry {
		return ErrInvalidTransition
	}
	return j.apply(e, nil)
}

// Fail moves the job to FAILED with err attached.
func (j *Job) Fail(err *common.AppError) error {
	if err == nil {
		err = common.NewAppError(common.CodeAIExtractionFailed, "Processing failed.", nil)
	}
	return j.apply(EventFail, err)
}

// Retry moves a FAILED job back to NOT_UPLOADED, clearing its error, artifacts and progress.
func (j *Job) Retry() error {
	return j.apply(EventRetry, nil)
}

func (j *Job) apply(e Event, failure *common.AppError) error {
	j.mu.Lock()
	to, err := Next(j.status, e)
	if err != nil {
		j.mu.Unlock()
		return err
	}
	j.status = to
	j.updatedAt = time.Now().UTC()
	switch e {
	case EventFail:
		j.err = failure
	case EventRetry:
		j.err = nil
		j.progress = 0
		j.attempt++
		j.raster = nil
		j.compressed = nil
		j.objectKey = ""
	default:
		if p, ok := stageProgress[to]; ok && p > j.progress {
			j.progress = p
		}
	}
	snap := j.snapshotLocked()
	listeners := append([]Listener(nil), j.listeners...)
	j.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return nil
}

// SetProgress raises progress to p within the current attempt. Lower values are ignored.
func (j *Job) SetProgress(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == constants.StatusFailed || j.status == constants.StatusCompleted {
		return
	}
	if p > j.progress {
		j.progress = p
		j.updatedAt = time.Now().UTC()
	}
}

// SetRaster replaces the rasterized artifact.
func (j *Job) SetRaster(a *entity.ImageArtifact) {
	j.mu.Lock()
	j.raster = a
	j.mu.Unlock()
}

func (j *Job) Raster() *entity.ImageArtifact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.raster
}

// SetCompressed replaces the compressed artifact.
func (j *Job) SetCompressed(a *entity.ImageArtifact) {
	j.mu.Lock()
	j.compressed = a
	j.mu.Unlock()
}

func (j *Job) Compressed() *entity.ImageArtifact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.compressed
}

// CommitObjectKey records the storage key once the upload stage has succeeded.
func (j *Job) CommitObjectKey(key string) {
	j.mu.Lock()
	j.objectKey = key
	j.mu.Unlock()
}

func (j *Job) ObjectKey() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.objectKey
}

// SetInvoiceID records the stored invoice identifier.
func (j *Job) SetInvoiceID(id uuid.UUID) {
	j.mu.Lock()
	j.invoiceID = &id
	j.mu.Unlock()
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:        j.id,
		UserID:    j.userID,
		FileName:  j.source.Name,
		MIMEType:  j.source.MIMEType,
		Size:      j.source.Size,
		Status:    j.status,
		Progress:  j.progress,
		Attempt:   j.attempt,
		ObjectKey: j.objectKey,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
	if j.invoiceID != nil {
		id := *j.invoiceID
		s.InvoiceID = &id
	}
	if j.err != nil {
		s.ErrorCode = j.err.Code
		s.ErrorMsg = j.err.Message
	}
	return s
}
