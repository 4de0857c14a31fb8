package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

// FSIngestor reads from the local filesystem and submits each file as an upload job.
// Files whose content hash was already submitted by this ingestor are skipped.
type FSIngestor struct {
	submitter Submitter
	maxBytes  int64
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]string // sha256 -> job id
}

func NewFSIngestor(s Submitter, maxBytes int64, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{
		submitter: s,
		maxBytes:  maxBytes,
		logger:    logger,
		seen:      make(map[string]string),
	}
}

func (i *FSIngestor) IngestPath(ctx context.Context, userID, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	src, err := LoadFile(path, i.maxBytes)
	if err != nil {
		i.logger.Warn("ingest.load_failed", "path", path, "error", err)
		return out, err
	}
	out.HashHex = src.SHA256

	if jobID, dup := i.claim(src.SHA256); dup {
		i.logger.Info("ingest.deduplicated", "path", path, "sha256", src.SHA256, "job_id", jobID)
		out.JobID = jobID
		out.Deduplicated = true
		return out, nil
	}

	snap, err := i.submitter.Submit(ctx, userID, src)
	if err != nil {
		i.release(src.SHA256)
		i.logger.Error("ingest.submit_failed", "path", path, "error", err)
		return out, fmt.Errorf("submit %s: %w", path, err)
	}
	i.record(src.SHA256, snap.ID.String())
	out.JobID = snap.ID.String()
	i.logger.Info("ingest.submitted", "path", path, "job_id", out.JobID, "mime_type", src.MIMEType, "size", src.Size)
	return out, nil
}

// IngestDirectory walks root, skips hidden if requested,
// and calls IngestPath for each file. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, userID, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !AllowedExt(constants.NormalizeExt(filepath.Ext(path))) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, userID, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, HashHex: r.HashHex, Err: err.Error()})
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}

// claim reserves hash; it reports the existing job id when already taken.
func (i *FSIngestor) claim(hash string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if id, ok := i.seen[hash]; ok {
		return id, true
	}
	i.seen[hash] = ""
	return "", false
}

func (i *FSIngestor) record(hash, jobID string) {
	i.mu.Lock()
	i.seen[hash] = jobID
	i.mu.Unlock()
}

func (i *FSIngestor) release(hash string) {
	i.mu.Lock()
	delete(i.seen, hash)
	i.mu.Unlock()
}
