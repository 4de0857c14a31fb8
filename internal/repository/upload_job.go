package repository

import (
	"context"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
)

// UploadJobRepository records the latest state of every upload job.
type UploadJobRepository interface {
	Upsert(ctx context.Context, snap upload.Snapshot) error
}

type uploadJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewUploadJobRepository(db *DB, log *slog.Logger) UploadJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &uploadJobRepo{db: db, log: log}
}

func (r *uploadJobRepo) Upsert(ctx context.Context, snap upload.Snapshot) error {
	var invoiceID any
	if snap.InvoiceID != nil {
		invoiceID = snap.InvoiceID.String()
	}
	query, args := entsql.Dialect(r.db.Dialect).
		Insert("upload_jobs").
		Columns("id", "user_id", "file_name", "mime_type", "size_bytes", "status", "progress", "attempt",
			"error_code", "error_message", "object_key", "invoice_id", "created_at", "updated_at").
		Values(snap.ID.String(), snap.UserID, snap.FileName, snap.MIMEType, snap.Size, string(snap.Status),
			snap.Progress, snap.Attempt, emptyAsNull(snap.ErrorCode), emptyAsNull(snap.ErrorMsg),
			emptyAsNull(snap.ObjectKey), invoiceID, snap.CreatedAt, snap.UpdatedAt).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.log.Error("upload_job upsert failed", "job_id", snap.ID, "status", snap.Status, "err", err)
		return err
	}
	r.log.Debug("upload_job recorded", "job_id", snap.ID, "status", snap.Status, "progress", snap.Progress)
	return nil
}

func emptyAsNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
