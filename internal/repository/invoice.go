package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/internal/anomaly"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

const invoicesTable = "invoices"

var historyColumns = []string{"id", "invoice_number", "supplier_name", "total_amount", "invoice_date"}

// InvoiceRepository persists finished invoices and serves the history anomaly checks read.
type InvoiceRepository interface {
	Save(ctx context.Context, inv entity.Invoice) (uuid.UUID, error)
	List(ctx context.Context, userID string, from, to *time.Time) ([]entity.Invoice, error)

	InvoicesByUser(ctx context.Context, userID string) ([]entity.HistoricalInvoice, error)
	InvoicesByDateRange(ctx context.Context, userID string, from, to time.Time) ([]entity.HistoricalInvoice, error)
	InvoicesBySupplier(ctx context.Context, userID, supplier string) ([]entity.HistoricalInvoice, error)
	Suppliers(ctx context.Context, userID string) ([]string, error)
}

type invoiceRepository struct {
	db     *DB
	logger *slog.Logger
}

var _ anomaly.HistoryReader = (*invoiceRepository)(nil)

func NewInvoiceRepository(db *DB, logger *slog.Logger) InvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect)
}

// Save inserts inv, or replaces the row with the same ID.
func (r *invoiceRepository) Save(ctx context.Context, inv entity.Invoice) (uuid.UUID, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	categoryJSON, err := json.Marshal(inv.Category)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal category: %w", err)
	}
	d := inv.Extracted
	var normalized any
	if s := d.Supplier(); s != "" {
		normalized = anomaly.NormalizeSupplier(s)
	}

	query, args := r.builder().
		Insert(invoicesTable).
		Columns(
			"id", "user_id", "job_id", "object_key", "file_name",
			"invoice_number", "supplier_name", "supplier_normalized",
			"subtotal", "tax_amount", "total_amount", "currency",
			"invoice_date", "due_date",
			"category", "category_confidence",
			"is_valid", "needs_review", "is_duplicate", "provider",
			"extracted_json", "validation_json", "anomalies_json", "category_json",
			"created_at",
		).
		Values(
			inv.ID.String(), inv.UserID, inv.JobID.String(), inv.ObjectKey, inv.FileName,
			nullString(d.InvoiceNumber), nullString(d.SupplierName), normalized,
			nullFloat(d.Subtotal), nullFloat(d.TaxAmount), nullFloat(d.TotalAmount), nullString(d.Currency),
			nullString(d.InvoiceDate), nullString(d.DueDate),
			string(inv.Category.SuggestedCategory), inv.Category.Confidence,
			inv.Validation.IsValid, inv.NeedsReview, inv.Anomalies.IsDuplicate, inv.ExtractionProvider,
			string(inv.ExtractedJSON()), string(inv.ValidationJSON()), string(inv.AnomaliesJSON()), string(categoryJSON),
			inv.CreatedAt,
		).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to save invoice", "invoice_id", inv.ID, "job_id", inv.JobID, "error", err)
		return uuid.Nil, err
	}
	r.logger.Info("invoice saved", "invoice_id", inv.ID, "job_id", inv.JobID, "needs_review", inv.NeedsReview)
	return inv.ID, nil
}

// List returns a user's invoices ordered by invoice date, optionally bounded.
func (r *invoiceRepository) List(ctx context.Context, userID string, from, to *time.Time) ([]entity.Invoice, error) {
	sel := r.builder().
		Select("id", "user_id", "job_id", "object_key", "file_name", "needs_review", "provider",
			"extracted_json", "validation_json", "anomalies_json", "category_json").
		From(entsql.Table(invoicesTable)).
		Where(entsql.EQ("user_id", userID))
	if from != nil {
		sel = sel.Where(entsql.GTE("invoice_date", from.Format(entity.DateLayout)))
	}
	if to != nil {
		sel = sel.Where(entsql.LTE("invoice_date", to.Format(entity.DateLayout)))
	}
	query, args := sel.OrderBy("invoice_date", "id").Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list invoices", "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []entity.Invoice
	for rows.Next() {
		var (
			inv                                   entity.Invoice
			id, jobID                             string
			extracted, validation, anomalies, cat string
		)
		if err := rows.Scan(&id, &inv.UserID, &jobID, &inv.ObjectKey, &inv.FileName, &inv.NeedsReview,
			&inv.ExtractionProvider, &extracted, &validation, &anomalies, &cat); err != nil {
			return nil, err
		}
		if inv.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invoice id %q: %w", id, err)
		}
		if inv.JobID, err = uuid.Parse(jobID); err != nil {
			return nil, fmt.Errorf("job id %q: %w", jobID, err)
		}
		for _, col := range []struct {
			raw string
			dst any
		}{
			{extracted, &inv.Extracted},
			{validation, &inv.Validation},
			{anomalies, &inv.Anomalies},
			{cat, &inv.Category},
		} {
			if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
				return nil, fmt.Errorf("decode invoice %s: %w", id, err)
			}
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *invoiceRepository) InvoicesByUser(ctx context.Context, userID string) ([]entity.HistoricalInvoice, error) {
	query, args := r.builder().
		Select(historyColumns...).
		From(entsql.Table(invoicesTable)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy("invoice_date").
		Query()
	return r.queryHistory(ctx, query, args)
}

// InvoicesByDateRange returns invoices dated within [from, to], inclusive.
func (r *invoiceRepository) InvoicesByDateRange(ctx context.Context, userID string, from, to time.Time) ([]entity.HistoricalInvoice, error) {
	query, args := r.builder().
		Select(historyColumns...).
		From(entsql.Table(invoicesTable)).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.GTE("invoice_date", from.Format(entity.DateLayout)),
			entsql.LTE("invoice_date", to.Format(entity.DateLayout)),
		)).
		OrderBy("invoice_date").
		Query()
	return r.queryHistory(ctx, query, args)
}

func (r *invoiceRepository) InvoicesBySupplier(ctx context.Context, userID, supplier string) ([]entity.HistoricalInvoice, error) {
	query, args := r.builder().
		Select(historyColumns...).
		From(entsql.Table(invoicesTable)).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("supplier_normalized", supplier),
		)).
		OrderBy("invoice_date").
		Query()
	return r.queryHistory(ctx, query, args)
}

// Suppliers returns the distinct raw supplier names the user has on file.
func (r *invoiceRepository) Suppliers(ctx context.Context, userID string) ([]string, error) {
	query, args := r.builder().
		Select("supplier_name").
		Distinct().
		From(entsql.Table(invoicesTable)).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.NotNull("supplier_name"),
		)).
		OrderBy("supplier_name").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list suppliers", "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out, rows.Err()
}

func (r *invoiceRepository) queryHistory(ctx context.Context, query string, args []any) ([]entity.HistoricalInvoice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to read invoice history", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []entity.HistoricalInvoice
	for rows.Next() {
		var (
			id                          string
			number, supplier, issueDate sql.NullString
			total                       sql.NullFloat64
		)
		if err := rows.Scan(&id, &number, &supplier, &total, &issueDate); err != nil {
			return nil, err
		}
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invoice id %q: %w", id, err)
		}
		h := entity.HistoricalInvoice{
			ID:            uid,
			InvoiceNumber: number.String,
			SupplierName:  supplier.String,
			InvoiceDate:   issueDate.String,
		}
		if total.Valid {
			v := total.Float64
			h.TotalAmount = &v
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
