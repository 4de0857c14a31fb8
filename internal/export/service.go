package export

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// InvoiceLister is the slice of the invoice repository the exporter reads from.
type InvoiceLister interface {
	List(ctx context.Context, userID string, from, to *time.Time) ([]entity.Invoice, error)
}

// Filter narrows an export.
type Filter struct {
	From       *time.Time
	To         *time.Time
	ReviewOnly bool
}

// Service produces XLSX workbooks of stored invoices.
type Service struct {
	invoices InvoiceLister
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(invoices InvoiceLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger, now: time.Now}
}

// Result is an export and its row counts.
type Result struct {
	XLSX        []byte
	Rows        int
	NeedsReview int
}

var invoiceHeaders = []string{
	"Invoice Date",
	"Supplier",
	"Invoice Number",
	"Category",
	"Confidence",
	"Subtotal",
	"Tax",
	"Total",
	"Currency",
	"Valid",
	"Needs Review",
	"Anomalies",
	"Issues",
	"Object Key",
}

// ExportXLSX writes an "Invoices" sheet and a "Categories" summary.
// If only From is set the window ends today (inclusive).
// If only To is set the window starts at the beginning.
func (s *Service) ExportXLSX(ctx context.Context, userID string, f Filter) (Result, error) {
	start := time.Now()
	from, to := NormalizeWindow(f.From, f.To, s.now())

	invs, err := s.invoices.List(ctx, userID, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("query invoices: %w", err)
	}
	if f.ReviewOnly {
		kept := invs[:0]
		for _, inv := range invs {
			if inv.NeedsReview {
				kept = append(kept, inv)
			}
		}
		invs = kept
	}

	x := excelize.NewFile()
	defer func() { _ = x.Close() }()

	const sheet = "Invoices"
	if err := x.SetSheetName("Sheet1", sheet); err != nil {
		return Result{}, fmt.Errorf("xlsx sheet: %w", err)
	}
	for i, h := range invoiceHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = x.SetCellValue(sheet, cell, h)
	}

	res := Result{Rows: len(invs)}
	for i, inv := range invs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = x.SetCellValue(sheet, cell, v)
		}
		d := inv.Extracted
		write(1, str(d.InvoiceDate))
		write(2, str(d.SupplierName))
		write(3, str(d.InvoiceNumber))
		write(4, string(inv.Category.SuggestedCategory))
		write(5, inv.Category.Confidence)
		writeAmount(write, 6, d.Subtotal)
		writeAmount(write, 7, d.TaxAmount)
		writeAmount(write, 8, d.TotalAmount)
		write(9, str(d.Currency))
		write(10, yesNo(inv.Validation.IsValid))
		write(11, yesNo(inv.NeedsReview))
		write(12, truncate(anomalySummary(inv.Anomalies), 200))
		write(13, truncate(issueSummary(inv.Validation), 200))
		write(14, inv.ObjectKey)
		if inv.NeedsReview {
			res.NeedsReview++
		}
	}

	_ = x.SetColWidth(sheet, "A", "A", 14)
	_ = x.SetColWidth(sheet, "B", "C", 28)
	_ = x.SetColWidth(sheet, "D", "D", 22)
	_ = x.SetColWidth(sheet, "E", "I", 12)
	_ = x.SetColWidth(sheet, "J", "K", 12)
	_ = x.SetColWidth(sheet, "L", "M", 48)
	_ = x.SetColWidth(sheet, "N", "N", 60)
	_ = x.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if err := writeCategorySummary(x, invs); err != nil {
		return Result{}, err
	}

	buf, err := x.WriteToBuffer()
	if err != nil {
		return Result{}, fmt.Errorf("xlsx write: %w", err)
	}
	res.XLSX = buf.Bytes()

	s.logger.Info("export.xlsx.ok",
		"user_id", userID,
		"rows", res.Rows,
		"needs_review", res.NeedsReview,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// NormalizeWindow truncates both bounds to UTC dates and closes an open-ended
// window at today when only from is given.
func NormalizeWindow(from, to *time.Time, now time.Time) (*time.Time, *time.Time) {
	day := func(t time.Time) *time.Time {
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	var f, t *time.Time
	if from != nil {
		f = day(*from)
	}
	if to != nil {
		t = day(*to)
	}
	if f != nil && t == nil {
		t = day(now.UTC())
	}
	return f, t
}

func writeCategorySummary(x *excelize.File, invs []entity.Invoice) error {
	const sheet = "Categories"
	if _, err := x.NewSheet(sheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	type agg struct {
		count int
		total float64
	}
	byCat := map[constants.Category]*agg{}
	for _, inv := range invs {
		c := inv.Category.SuggestedCategory
		if c == "" {
			c = constants.Other
		}
		a, ok := byCat[c]
		if !ok {
			a = &agg{}
			byCat[c] = a
		}
		a.count++
		if inv.Extracted.TotalAmount != nil {
			a.total += *inv.Extracted.TotalAmount
		}
	}
	cats := make([]constants.Category, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	_ = x.SetSheetRow(sheet, "A1", &[]any{"Category", "Invoices", "Total"})
	for i, c := range cats {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = x.SetSheetRow(sheet, cell, &[]any{string(c), byCat[c].count, round2(byCat[c].total)})
	}
	_ = x.SetColWidth(sheet, "A", "A", 24)
	return nil
}

func writeAmount(write func(int, any), col int, v *float64) {
	if v == nil {
		write(col, "")
		return
	}
	write(col, round2(*v))
}

func anomalySummary(r entity.AnomalyDetectionResult) string {
	parts := make([]string, 0, len(r.Details))
	for _, d := range r.Details {
		parts = append(parts, fmt.Sprintf("%s (%s)", d.Type, d.Severity))
	}
	return strings.Join(parts, "; ")
}

func issueSummary(v entity.ValidationResult) string {
	parts := make([]string, 0, len(v.Errors)+len(v.Warnings))
	for _, e := range v.Errors {
		parts = append(parts, e.Field+": "+e.Message)
	}
	for _, w := range v.Warnings {
		parts = append(parts, w.Field+": "+w.Message)
	}
	return strings.Join(parts, "; ")
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
