package server

import (
	"context"
	"encoding/base64"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
)

// ExportReview builds the review workbook for {user_id, from_date, to_date, review_only, out_path}.
// Dates are YYYY-MM-DD. Without out_path the workbook is returned base64 encoded in "xlsx".
func (s *UploadService) ExportReview(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.exporter == nil {
		return nil, status.Error(codes.Unimplemented, "export is disabled")
	}
	userID, err := requireString(req, "user_id")
	if err != nil {
		return nil, err
	}

	var f export.Filter
	if fd := strings.TrimSpace(stringField(req, "from_date")); fd != "" {
		t, err := time.Parse("2006-01-02", fd)
		if err != nil {
			return nil, common.InvalidArgumentError("from_date must be YYYY-MM-DD")
		}
		f.From = &t
	}
	if td := strings.TrimSpace(stringField(req, "to_date")); td != "" {
		t, err := time.Parse("2006-01-02", td)
		if err != nil {
			return nil, common.InvalidArgumentError("to_date must be YYYY-MM-DD")
		}
		f.To = &t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, common.InvalidArgumentError("to_date must not be before from_date")
	}
	f.ReviewOnly = boolField(req, "review_only", false)

	res, err := s.exporter.ExportXLSX(ctx, userID, f)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "user_id", userID, "error", err)
		return nil, common.InternalError("export failed")
	}

	out := map[string]any{"rows": res.Rows, "needs_review": res.NeedsReview}
	if p := strings.TrimSpace(stringField(req, "out_path")); p != "" {
		if err := os.WriteFile(p, res.XLSX, 0o644); err != nil {
			s.logger.Error("export.write_failed", "path", p, "error", err)
			return nil, common.InternalErrorf("write %s: %v", p, err)
		}
		out["out_path"] = p
	} else {
		out["xlsx"] = base64.StdEncoding.EncodeToString(res.XLSX)
	}
	return toStruct(out)
}
