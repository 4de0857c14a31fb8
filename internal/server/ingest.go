package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
)

// Submit accepts {user_id, file_name, mime_type, content} where content is base64.
func (s *UploadService) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requireString(req, "user_id")
	if err != nil {
		return nil, err
	}
	name, err := requireString(req, "file_name")
	if err != nil {
		return nil, err
	}
	encoded := stringField(req, "content")
	if encoded == "" {
		return nil, common.InvalidArgumentError("content is required")
	}
	if s.maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(encoded))) > s.maxBytes+2 {
		return nil, status.Error(codes.InvalidArgument, "The file is larger than the upload limit.")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, common.InvalidArgumentError("content must be base64")
	}

	src, err := ingest.NewSource(name, data, stringField(req, "mime_type"))
	if err != nil {
		s.logger.Warn("server.submit.rejected", "user_id", userID, "file", name, "error", err)
		return nil, common.ToStatus(err)
	}
	ctx = common.WithUserID(ctx, userID)
	snap, err := s.manager.Submit(ctx, userID, src)
	if err != nil {
		s.logger.Error("server.submit.failed", "user_id", userID, "file", name, "error", err)
		return nil, common.ToStatus(err)
	}
	s.logger.Info("server.submit.ok", "user_id", userID, "job_id", snap.ID, "file", name)
	return toStruct(snap)
}

// IngestPath ingests a server-local file or directory: {user_id, path, skip_hidden}.
func (s *UploadService) IngestPath(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.ingestor == nil {
		return nil, status.Error(codes.Unimplemented, "path ingestion is disabled")
	}
	userID, err := requireString(req, "user_id")
	if err != nil {
		return nil, err
	}
	path := strings.TrimSpace(stringField(req, "path"))
	if path == "" {
		return nil, common.InvalidArgumentError("path is required")
	}
	skipHidden := boolField(req, "skip_hidden", true)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.NotFoundError("path does not exist")
		}
		return nil, common.InvalidArgumentErrorf("path: %v", err)
	}

	if !info.IsDir() {
		s.logger.Info("server.ingest.file", "user_id", userID, "path", path)
		r, err := s.ingestor.IngestPath(ctx, userID, path)
		if err != nil {
			return nil, common.ToStatus(err)
		}
		return toStruct(map[string]any{"results": []ingest.IngestionResult{r}})
	}

	s.logger.Info("server.ingest.directory", "user_id", userID, "root", path, "skip_hidden", skipHidden)
	results, stats, err := s.ingestor.IngestDirectory(ctx, userID, path, skipHidden)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "ingest directory: %v", err)
	}
	s.logger.Info("server.ingest.directory.done",
		"user_id", userID,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	if results == nil {
		results = []ingest.IngestionResult{}
	}
	return toStruct(map[string]any{"results": results, "stats": stats})
}
