package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the single display format dates are normalized to before storage.
const DateLayout = "2006-01-02"

// LineItem is one row of an invoice as read by the model.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Total       *float64 `json:"total,omitempty"`
	TaxRate     *float64 `json:"tax_rate,omitempty"`
}

// ExtractedInvoiceData is the structured output of the vision model for one document.
// Every scalar is optional; monetary fields are plain numbers.
type ExtractedInvoiceData struct {
	InvoiceNumber      *string    `json:"invoice_number"`
	SupplierName       *string    `json:"supplier_name"`
	SupplierAddress    *string    `json:"supplier_address"`
	SupplierTaxID      *string    `json:"supplier_tax_id"`
	Subtotal           *float64   `json:"subtotal"`
	TaxAmount          *float64   `json:"tax_amount"`
	TaxRate            *float64   `json:"tax_rate"`
	TotalAmount        *float64   `json:"total_amount"`
	Currency           *string    `json:"currency"`
	InvoiceDate        *string    `json:"invoice_date"` // YYYY-MM-DD
	DueDate            *string    `json:"due_date"`     // YYYY-MM-DD
	Description        *string    `json:"description"`
	Items              []LineItem `json:"items"`
	SuggestedCategory  *string    `json:"suggested_category"`
	CategoryConfidence *float64   `json:"category_confidence"`
	CategoryReasoning  *string    `json:"category_reasoning"`
}

// Supplier returns the supplier name or "".
func (d ExtractedInvoiceData) Supplier() string { return deref(d.SupplierName) }

// ParsedInvoiceDate parses InvoiceDate using DateLayout.
func (d ExtractedInvoiceData) ParsedInvoiceDate() (time.Time, bool) {
	return parseDate(d.InvoiceDate)
}

// ParsedDueDate parses DueDate using DateLayout.
func (d ExtractedInvoiceData) ParsedDueDate() (time.Time, bool) {
	return parseDate(d.DueDate)
}

// Invoice is the combined, immutable record handed to persistence.
type Invoice struct {
	ID                 uuid.UUID              `json:"id"`
	UserID             string                 `json:"user_id"`
	JobID              uuid.UUID              `json:"job_id"`
	ObjectKey          string                 `json:"object_key"`
	FileName           string                 `json:"file_name"`
	Extracted          ExtractedInvoiceData   `json:"extracted"`
	Validation         ValidationResult       `json:"validation"`
	Anomalies          AnomalyDetectionResult `json:"anomalies"`
	Category           CategorySuggestion     `json:"category"`
	NeedsReview        bool                   `json:"needs_review"`
	ExtractionProvider string                 `json:"extraction_provider,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}

// ExtractedJSON marshals the extracted fields for storage.
func (i Invoice) ExtractedJSON() json.RawMessage { return mustRaw(i.Extracted) }

// ValidationJSON marshals the validation verdict for storage.
func (i Invoice) ValidationJSON() json.RawMessage { return mustRaw(i.Validation) }

// AnomaliesJSON marshals the anomaly flags for storage.
func (i Invoice) AnomaliesJSON() json.RawMessage { return mustRaw(i.Anomalies) }

// HistoricalInvoice is the read-only view of a stored invoice used for anomaly checks.
type HistoricalInvoice struct {
	ID            uuid.UUID `json:"id"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	SupplierName  string    `json:"supplier_name"`
	TotalAmount   *float64  `json:"total_amount,omitempty"`
	InvoiceDate   string    `json:"invoice_date,omitempty"` // YYYY-MM-DD
}

// ParsedInvoiceDate parses InvoiceDate using DateLayout.
func (h HistoricalInvoice) ParsedInvoiceDate() (time.Time, bool) {
	return parseDate(&h.InvoiceDate)
}

func parseDate(s *string) (time.Time, bool) {
	if s == nil || *s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, *s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

// StringPtr and FloatPtr build optional fields.
func StringPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }
