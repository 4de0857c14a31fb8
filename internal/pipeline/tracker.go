package pipeline

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
)

// Tracker keeps every job submitted to this process for status reporting and retry.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*upload.Job
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[uuid.UUID]*upload.Job)}
}

func (t *Tracker) Add(job *upload.Job) {
	t.mu.Lock()
	t.jobs[job.ID()] = job
	t.mu.Unlock()
}

func (t *Tracker) Get(id uuid.UUID) (*upload.Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	return j, ok
}

// List returns snapshots of a user's jobs, oldest first. An empty userID lists everything.
func (t *Tracker) List(userID string) []upload.Snapshot {
	t.mu.RLock()
	out := make([]upload.Snapshot, 0, len(t.jobs))
	for _, j := range t.jobs {
		if userID == "" || j.UserID() == userID {
			out = append(out, j.Snapshot())
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID.String() < out[k].ID.String()
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}
