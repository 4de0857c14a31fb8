package ingest

import (
	"context"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string `json:"source_path"`
	JobID        string `json:"job_id,omitempty"`
	Deduplicated bool   `json:"deduplicated"`
	HashHex      string `json:"sha256,omitempty"`
	Err          string `json:"error,omitempty"`
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32 `json:"scanned"`
	Matched      uint32 `json:"matched"`
	Succeeded    uint32 `json:"succeeded"`
	Deduplicated uint32 `json:"deduplicated"`
	Failed       uint32 `json:"failed"`
}

// Submitter hands a loaded file to the pipeline.
type Submitter interface {
	Submit(ctx context.Context, userID string, src entity.SourceFile) (upload.Snapshot, error)
}

// Ingestor is the behavior the service depends on.
type Ingestor interface {
	// IngestPath a single path.
	IngestPath(ctx context.Context, userID, path string) (IngestionResult, error)
	// IngestDirectory ingests all matching files under root.
	IngestDirectory(ctx context.Context, userID, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}
