package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

var today = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func newDetector(h HistoryReader) *Detector {
	return NewDetector(h, DefaultConfig(), nil).WithClock(func() time.Time { return today })
}

func invoice(supplier string, total float64, date string) entity.ExtractedInvoiceData {
	return entity.ExtractedInvoiceData{
		SupplierName: entity.StringPtr(supplier),
		TotalAmount:  entity.FloatPtr(total),
		InvoiceDate:  entity.StringPtr(date),
	}
}

func detect(t *testing.T, h HistoryReader, data entity.ExtractedInvoiceData) entity.AnomalyDetectionResult {
	t.Helper()
	res, err := newDetector(h).Detect(context.Background(), "user-1", data, uuid.Nil)
	require.NoError(t, err)
	assertFlagsMirrorDetails(t, res)
	return res
}

func assertFlagsMirrorDetails(t *testing.T, r entity.AnomalyDetectionResult) {
	t.Helper()
	assert.Equal(t, r.Has(entity.AnomalyDuplicateInvoice), r.IsDuplicate)
	assert.Equal(t, r.Has(entity.AnomalyAmountSpike), r.IsAmountAnomaly)
	assert.Equal(t, r.Has(entity.AnomalyFutureDate) || r.Has(entity.AnomalyOldDate), r.IsDateAnomaly)
	assert.Equal(t, r.Has(entity.AnomalyNewSupplier) || r.Has(entity.AnomalySupplierMismatch), r.IsSupplierAnomaly)
}

func detail(r entity.AnomalyDetectionResult, typ entity.AnomalyType) *entity.AnomalyDetail {
	for i := range r.Details {
		if r.Details[i].Type == typ {
			return &r.Details[i]
		}
	}
	return nil
}

func TestDetect_DuplicateOneDayApart(t *testing.T) {
	h := &memoryHistory{}
	prior := h.add("Acme Pty Ltd", 110, "2024-06-01", "")

	res := detect(t, h, invoice("Acme Pty Ltd", 110, "2024-06-02"))
	require.True(t, res.IsDuplicate)
	d := detail(res, entity.AnomalyDuplicateInvoice)
	assert.Equal(t, entity.SeverityHigh, d.Severity)
	require.NotNil(t, d.RelatedInvoiceID)
	assert.Equal(t, prior, *d.RelatedInvoiceID)
	assert.False(t, res.IsSupplierAnomaly, "known supplier")
}

func TestDetect_DuplicateBoundaries(t *testing.T) {
	h := &memoryHistory{}
	h.add("Acme Pty Ltd", 110, "2024-06-01", "")

	assert.True(t, detect(t, h, invoice("ACME PTY. LTD.", 110.01, "2024-06-08")).IsDuplicate)
	assert.False(t, detect(t, h, invoice("Acme Pty Ltd", 110, "2024-06-09")).IsDuplicate, "outside window")
	assert.False(t, detect(t, h, invoice("Acme Pty Ltd", 110.5, "2024-06-02")).IsDuplicate, "different total")
	assert.False(t, detect(t, h, invoice("Globex", 110, "2024-06-02")).IsDuplicate, "different supplier")
}

func TestDetect_DuplicateInvoiceNumber(t *testing.T) {
	h := &memoryHistory{}
	h.add("Acme Pty Ltd", 50, "2024-01-01", "INV-77")

	data := invoice("Acme Pty Ltd", 99, "2024-06-01")
	data.InvoiceNumber = entity.StringPtr("inv-77")
	res := detect(t, h, data)
	assert.True(t, res.IsDuplicate)
}

func TestDetect_ExcludesOwnRow(t *testing.T) {
	h := &memoryHistory{}
	self := h.add("Acme Pty Ltd", 110, "2024-06-02", "")

	res, err := newDetector(h).Detect(context.Background(), "user-1", invoice("Acme Pty Ltd", 110, "2024-06-02"), self)
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
}

func TestDetect_AmountSpike(t *testing.T) {
	h := &memoryHistory{}
	for _, d := range []string{"2024-01-05", "2024-02-05", "2024-03-05"} {
		h.add("Telstra", 100, d, "")
	}

	assert.False(t, detect(t, h, invoice("Telstra", 300, "2024-06-05")).IsAmountAnomaly, "exactly 3x is not a spike")

	res := detect(t, h, invoice("Telstra", 350, "2024-06-05"))
	require.True(t, res.IsAmountAnomaly)
	assert.Equal(t, entity.SeverityMedium, detail(res, entity.AnomalyAmountSpike).Severity)

	res = detect(t, h, invoice("Telstra", 600, "2024-06-05"))
	assert.Equal(t, entity.SeverityHigh, detail(res, entity.AnomalyAmountSpike).Severity)
}

func TestDetect_SpikeFallsBackToOverall(t *testing.T) {
	h := &memoryHistory{}
	h.add("A", 100, "2024-01-01", "")
	h.add("B", 100, "2024-02-01", "")
	h.add("Telstra", 100, "2024-03-01", "")

	res := detect(t, h, invoice("Telstra", 400, "2024-06-05"))
	require.True(t, res.IsAmountAnomaly)
	assert.Contains(t, detail(res, entity.AnomalyAmountSpike).Message, "all suppliers")
}

func TestDetect_SpikeNeedsSamples(t *testing.T) {
	h := &memoryHistory{}
	h.add("Telstra", 10, "2024-01-01", "")
	h.add("Telstra", 10, "2024-02-01", "")

	assert.False(t, detect(t, h, invoice("Telstra", 1000, "2024-06-05")).IsAmountAnomaly)
}

func TestDetect_Dates(t *testing.T) {
	h := &memoryHistory{}
	h.add("Acme", 10, "2024-01-01", "")

	res := detect(t, h, invoice("Acme", 10, "2024-06-11"))
	assert.Equal(t, entity.SeverityMedium, detail(res, entity.AnomalyFutureDate).Severity)

	res = detect(t, h, invoice("Acme", 10, "2023-06-01"))
	assert.Equal(t, entity.SeverityLow, detail(res, entity.AnomalyOldDate).Severity)

	res = detect(t, h, invoice("Acme", 10, "2024-06-10"))
	assert.False(t, res.IsDateAnomaly, "today is fine")
}

func TestDetect_Suppliers(t *testing.T) {
	h := &memoryHistory{}
	h.add("Officeworks", 20, "2024-01-01", "")

	res := detect(t, h, invoice("Bunnings", 20, "2024-06-01"))
	require.NotNil(t, detail(res, entity.AnomalyNewSupplier))
	assert.Equal(t, entity.SeverityLow, detail(res, entity.AnomalyNewSupplier).Severity)

	res = detect(t, h, invoice("Officework", 20, "2024-06-01"))
	mismatch := detail(res, entity.AnomalySupplierMismatch)
	require.NotNil(t, mismatch)
	assert.Equal(t, entity.SeverityMedium, mismatch.Severity)
	assert.Contains(t, mismatch.SuggestedAction, "Officeworks")
	assert.Nil(t, detail(res, entity.AnomalyNewSupplier), "mismatch suppresses new supplier")

	res = detect(t, h, invoice("Officeworks Pty Ltd", 20, "2024-06-01"))
	assert.NotNil(t, detail(res, entity.AnomalySupplierMismatch), "same company written differently")

	res = detect(t, h, invoice("OFFICEWORKS", 20, "2024-06-01"))
	assert.False(t, res.IsSupplierAnomaly, "casing only")
}

func TestDetect_SupplierPunctuationOnly(t *testing.T) {
	h := &memoryHistory{}
	h.add("Telstra", 20, "2024-01-01", "")

	for _, name := range []string{"Telstra.", "TELSTRA", " telstra "} {
		res := detect(t, h, invoice(name, 20, "2024-06-01"))
		assert.False(t, res.IsSupplierAnomaly, name)
	}

	res := detect(t, h, invoice("Telstra, Inc", 20, "2024-06-01"))
	mismatch := detail(res, entity.AnomalySupplierMismatch)
	require.NotNil(t, mismatch, "company suffix is more than punctuation")
	assert.Equal(t, entity.SeverityMedium, mismatch.Severity)
}

func TestDetect_ReadsHistoryOnce(t *testing.T) {
	h := &memoryHistory{}
	h.add("Acme", 10, "2024-05-30", "A-1")
	h.add("Acme", 12, "2024-04-01", "A-2")
	h.add("Globex", 11, "2024-03-01", "G-1")

	data := invoice("Acme Pty Ltd", 100, "2024-06-01")
	data.InvoiceNumber = entity.StringPtr("A-9")
	detect(t, h, data)
	assert.Equal(t, 1, h.reads)
}

func TestDetect_OwnRowNotAKnownSupplier(t *testing.T) {
	h := &memoryHistory{}
	own := h.add("Initech", 10, "2024-06-01", "")

	res, err := newDetector(h).Detect(context.Background(), "user-1", invoice("Initech", 10, "2024-06-01"), own)
	require.NoError(t, err)
	assert.NotNil(t, detail(res, entity.AnomalyNewSupplier))
	assert.False(t, res.IsDuplicate)
}

func TestDetect_NothingToCompare(t *testing.T) {
	res := detect(t, &memoryHistory{}, entity.ExtractedInvoiceData{})
	assert.Empty(t, res.Details)
	assert.False(t, res.Flagged())
}

func TestDetect_HistoryError(t *testing.T) {
	h := &memoryHistory{err: errHistoryDown}
	_, err := newDetector(h).Detect(context.Background(), "u", invoice("A", 1, "2024-06-01"), uuid.Nil)
	assert.ErrorIs(t, err, errHistoryDown)
}

func TestDetect_DoesNotMutateHistory(t *testing.T) {
	h := &memoryHistory{}
	h.add("Acme", 10, "2024-06-01", "")
	before := append([]entity.HistoricalInvoice(nil), h.invoices...)
	detect(t, h, invoice("Acme", 10, "2024-06-01"))
	assert.Equal(t, before, h.invoices)
}

func TestNormalizeSupplier(t *testing.T) {
	tests := map[string]string{
		"Acme Pty Ltd":         "acme",
		"ACME PTY. LTD.":       "acme",
		"Smith & Sons Co":      "smith and sons",
		"  Globex, Inc. ":      "globex",
		"Telstra Corporation":  "telstra",
		"Ltd":                  "ltd",
		"Johnson Holdings LLC": "johnson holdings",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeSupplier(in), in)
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("acme", "acme"))
	assert.GreaterOrEqual(t, Similarity("officeworks", "officework"), 0.85)
	assert.Less(t, Similarity("officeworks", "bunnings"), 0.5)
}
