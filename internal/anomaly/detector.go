package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// HistoryReader is the read-only view of a user's stored invoices. Detect reads it once per
// pass and derives every other view from that snapshot.
type HistoryReader interface {
	InvoicesByUser(ctx context.Context, userID string) ([]entity.HistoricalInvoice, error)
}

// Config holds detector thresholds.
type Config struct {
	DuplicateWindow     time.Duration
	AmountTolerance     float64
	SpikeFactor         float64
	HighSpikeFactor     float64
	MinSamples          int
	OldDateHorizon      time.Duration
	SimilarityThreshold float64
}

func DefaultConfig() Config {
	return Config{
		DuplicateWindow:     7 * 24 * time.Hour,
		AmountTolerance:     0.01,
		SpikeFactor:         3,
		HighSpikeFactor:     5,
		MinSamples:          3,
		OldDateHorizon:      365 * 24 * time.Hour,
		SimilarityThreshold: 0.85,
	}
}

// Detector flags irregularities against history. It never mutates history.
type Detector struct {
	history HistoryReader
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

func NewDetector(history HistoryReader, cfg Config, logger *slog.Logger) *Detector {
	def := DefaultConfig()
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = def.DuplicateWindow
	}
	if cfg.AmountTolerance <= 0 {
		cfg.AmountTolerance = def.AmountTolerance
	}
	if cfg.SpikeFactor <= 0 {
		cfg.SpikeFactor = def.SpikeFactor
	}
	if cfg.HighSpikeFactor <= cfg.SpikeFactor {
		cfg.HighSpikeFactor = math.Max(def.HighSpikeFactor, cfg.SpikeFactor)
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.OldDateHorizon <= 0 {
		cfg.OldDateHorizon = def.OldDateHorizon
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{history: history, cfg: cfg, log: logger, now: time.Now}
}

// WithClock overrides the detector's notion of today. Used by tests.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Detect annotates data against the user's history. excludeID skips the invoice's own stored row.
// The returned error is only ever a history read failure; no finding is an error.
func (d *Detector) Detect(ctx context.Context, userID string, data entity.ExtractedInvoiceData, excludeID uuid.UUID) (entity.AnomalyDetectionResult, error) {
	res := entity.AnomalyDetectionResult{Details: []entity.AnomalyDetail{}}

	all, err := d.history.InvoicesByUser(ctx, userID)
	if err != nil {
		return entity.AnomalyDetectionResult{}, fmt.Errorf("load history: %w", err)
	}
	all = exclude(all, excludeID)

	issued, hasDate := data.ParsedInvoiceDate()
	supplier := NormalizeSupplier(data.Supplier())

	if hasDate && supplier != "" {
		window := dateRange(all, issued.Add(-d.cfg.DuplicateWindow), issued.Add(d.cfg.DuplicateWindow))
		d.checkDuplicate(&res, data, supplier, window)
	}
	if supplier != "" && !res.IsDuplicate {
		d.checkInvoiceNumber(&res, data, supplier, all)
	}

	if data.TotalAmount != nil && *data.TotalAmount > 0 {
		var bySupplier []entity.HistoricalInvoice
		if supplier != "" {
			bySupplier = ofSupplier(all, supplier)
		}
		d.checkSpike(&res, *data.TotalAmount, totals(bySupplier), totals(all))
	}
	if hasDate {
		d.checkDates(&res, issued)
	}
	if supplier != "" {
		d.checkSupplier(&res, data.Supplier(), supplier, supplierNames(all))
	}

	d.log.Debug("anomaly.detect.done",
		"user_id", userID,
		"history", len(all),
		"details", len(res.Details),
	)
	return res, nil
}

func (d *Detector) checkDuplicate(res *entity.AnomalyDetectionResult, data entity.ExtractedInvoiceData, supplier string, window []entity.HistoricalInvoice) {
	if data.TotalAmount == nil {
		return
	}
	issued, _ := data.ParsedInvoiceDate()
	for _, h := range window {
		if NormalizeSupplier(h.SupplierName) != supplier || h.TotalAmount == nil {
			continue
		}
		if math.Abs(*h.TotalAmount-*data.TotalAmount) > d.cfg.AmountTolerance+1e-9 {
			continue
		}
		hd, ok := h.ParsedInvoiceDate()
		if !ok || absDuration(hd.Sub(issued)) > d.cfg.DuplicateWindow {
			continue
		}
		id := h.ID
		res.Add(entity.AnomalyDetail{
			Type:     entity.AnomalyDuplicateInvoice,
			Severity: entity.SeverityHigh,
			Message: fmt.Sprintf("Possible duplicate of an invoice from %s dated %s for %.2f",
				h.SupplierName, h.InvoiceDate, *h.TotalAmount),
			SuggestedAction:  "Compare with the existing invoice and delete one if they are the same",
			RelatedInvoiceID: &id,
		})
		return
	}
}

func (d *Detector) checkInvoiceNumber(res *entity.AnomalyDetectionResult, data entity.ExtractedInvoiceData, supplier string, all []entity.HistoricalInvoice) {
	if data.InvoiceNumber == nil {
		return
	}
	num := strings.TrimSpace(*data.InvoiceNumber)
	if num == "" {
		return
	}
	for _, h := range all {
		if strings.EqualFold(strings.TrimSpace(h.InvoiceNumber), num) && NormalizeSupplier(h.SupplierName) == supplier {
			id := h.ID
			res.Add(entity.AnomalyDetail{
				Type:             entity.AnomalyDuplicateInvoice,
				Severity:         entity.SeverityHigh,
				Message:          fmt.Sprintf("Invoice number %s from %s was already recorded", num, h.SupplierName),
				SuggestedAction:  "Compare with the existing invoice and delete one if they are the same",
				RelatedInvoiceID: &id,
			})
			return
		}
	}
}

func (d *Detector) checkSpike(res *entity.AnomalyDetectionResult, total float64, bySupplier, overall []float64) {
	scope, sample := "this supplier", bySupplier
	if len(sample) < d.cfg.MinSamples {
		scope, sample = "all suppliers", overall
	}
	if len(sample) < d.cfg.MinSamples {
		return
	}
	avg := mean(sample)
	if avg <= 0 {
		return
	}
	ratio := total / avg
	if ratio <= d.cfg.SpikeFactor {
		return
	}
	sev := entity.SeverityMedium
	if ratio > d.cfg.HighSpikeFactor {
		sev = entity.SeverityHigh
	}
	res.Add(entity.AnomalyDetail{
		Type:     entity.AnomalyAmountSpike,
		Severity: sev,
		Message: fmt.Sprintf("Total %.2f is %.1fx the average of %.2f for %s",
			total, ratio, avg, scope),
		SuggestedAction: "Check the total amount was read correctly",
	})
}

func (d *Detector) checkDates(res *entity.AnomalyDetectionResult, issued time.Time) {
	today := truncateDay(d.now())
	switch {
	case issued.After(today):
		res.Add(entity.AnomalyDetail{
			Type:            entity.AnomalyFutureDate,
			Severity:        entity.SeverityMedium,
			Message:         fmt.Sprintf("Invoice date %s is in the future", issued.Format(entity.DateLayout)),
			SuggestedAction: "Check the invoice date was read correctly",
		})
	case today.Sub(issued) > d.cfg.OldDateHorizon:
		res.Add(entity.AnomalyDetail{
			Type:            entity.AnomalyOldDate,
			Severity:        entity.SeverityLow,
			Message:         fmt.Sprintf("Invoice date %s is more than %d days old", issued.Format(entity.DateLayout), int(d.cfg.OldDateHorizon.Hours()/24)),
			SuggestedAction: "Confirm this invoice belongs to the current period",
		})
	}
}

func (d *Detector) checkSupplier(res *entity.AnomalyDetectionResult, raw, supplier string, known []string) {
	var (
		closest  string
		bestSim  float64
		seenSame bool
	)
	for _, k := range known {
		nk := NormalizeSupplier(k)
		if nk == "" {
			continue
		}
		if k == raw {
			return
		}
		if nk == supplier {
			// same supplier written differently
			if !seenSame {
				closest, bestSim, seenSame = k, 1, true
			}
			continue
		}
		if seenSame {
			continue
		}
		if sim := Similarity(nk, supplier); sim > bestSim {
			closest, bestSim = k, sim
		}
	}

	if seenSame && foldName(closest) == foldName(raw) {
		// only casing, spacing or punctuation differs
		return
	}
	if seenSame || bestSim >= d.cfg.SimilarityThreshold {
		res.Add(entity.AnomalyDetail{
			Type:            entity.AnomalySupplierMismatch,
			Severity:        entity.SeverityMedium,
			Message:         fmt.Sprintf("Supplier %q looks like existing supplier %q", raw, closest),
			SuggestedAction: fmt.Sprintf("Reconcile the two names, e.g. rename to %q", closest),
		})
		return
	}
	res.Add(entity.AnomalyDetail{
		Type:     entity.AnomalyNewSupplier,
		Severity: entity.SeverityLow,
		Message:  fmt.Sprintf("First invoice from %s", raw),
	})
}

func exclude(in []entity.HistoricalInvoice, id uuid.UUID) []entity.HistoricalInvoice {
	if id == uuid.Nil {
		return in
	}
	out := make([]entity.HistoricalInvoice, 0, len(in))
	for _, h := range in {
		if h.ID != id {
			out = append(out, h)
		}
	}
	return out
}

// dateRange keeps invoices dated within [from, to], inclusive.
func dateRange(in []entity.HistoricalInvoice, from, to time.Time) []entity.HistoricalInvoice {
	var out []entity.HistoricalInvoice
	for _, h := range in {
		if t, ok := h.ParsedInvoiceDate(); ok && !t.Before(from) && !t.After(to) {
			out = append(out, h)
		}
	}
	return out
}

func ofSupplier(in []entity.HistoricalInvoice, supplier string) []entity.HistoricalInvoice {
	var out []entity.HistoricalInvoice
	for _, h := range in {
		if NormalizeSupplier(h.SupplierName) == supplier {
			out = append(out, h)
		}
	}
	return out
}

// supplierNames returns the distinct non-empty raw supplier names in hs, sorted.
func supplierNames(hs []entity.HistoricalInvoice) []string {
	seen := make(map[string]struct{}, len(hs))
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		if h.SupplierName == "" {
			continue
		}
		if _, ok := seen[h.SupplierName]; ok {
			continue
		}
		seen[h.SupplierName] = struct{}{}
		out = append(out, h.SupplierName)
	}
	sort.Strings(out)
	return out
}

// totals returns the positive totals of hs.
func totals(hs []entity.HistoricalInvoice) []float64 {
	out := make([]float64, 0, len(hs))
	for _, h := range hs {
		if h.TotalAmount != nil && *h.TotalAmount > 0 {
			out = append(out, *h.TotalAmount)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func truncateDay(t time.Time) time.Time {
	y, m, dd := t.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}
