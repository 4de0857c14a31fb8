package entity

import "github.com/google/uuid"

// AnomalyType is the closed set of irregularities the detector reports.
type AnomalyType string

const (
	AnomalyDuplicateInvoice AnomalyType = "DUPLICATE_INVOICE"
	AnomalyAmountSpike      AnomalyType = "AMOUNT_SPIKE"
	AnomalyFutureDate       AnomalyType = "FUTURE_DATE"
	AnomalyOldDate          AnomalyType = "OLD_DATE"
	AnomalyNewSupplier      AnomalyType = "NEW_SUPPLIER"
	AnomalySupplierMismatch AnomalyType = "SUPPLIER_MISMATCH"
)

// AnomalyDetail is one flagged irregularity.
type AnomalyDetail struct {
	Type             AnomalyType `json:"type"`
	Severity         Severity    `json:"severity"`
	Message          string      `json:"message"`
	SuggestedAction  string      `json:"suggested_action,omitempty"`
	RelatedInvoiceID *uuid.UUID  `json:"related_invoice_id,omitempty"`
}

// AnomalyDetectionResult annotates an invoice; each flag mirrors the presence of a detail type.
type AnomalyDetectionResult struct {
	IsDuplicate       bool            `json:"is_duplicate"`
	IsAmountAnomaly   bool            `json:"is_amount_anomaly"`
	IsDateAnomaly     bool            `json:"is_date_anomaly"`
	IsSupplierAnomaly bool            `json:"is_supplier_anomaly"`
	Details           []AnomalyDetail `json:"details"`
}

// Add appends d and sets the matching flag.
func (r *AnomalyDetectionResult) Add(d AnomalyDetail) {
	r.Details = append(r.Details, d)
	switch d.Type {
	case AnomalyDuplicateInvoice:
		r.IsDuplicate = true
	case AnomalyAmountSpike:
		r.IsAmountAnomaly = true
	case AnomalyFutureDate, AnomalyOldDate:
		r.IsDateAnomaly = true
	case AnomalyNewSupplier, AnomalySupplierMismatch:
		r.IsSupplierAnomaly = true
	}
}

// Flagged reports whether any detail was recorded.
func (r AnomalyDetectionResult) Flagged() bool { return len(r.Details) > 0 }

// NeedsReview reports whether any detail is above LOW severity. LOW details are informational.
func (r AnomalyDetectionResult) NeedsReview() bool {
	for _, d := range r.Details {
		if d.Severity != SeverityLow {
			return true
		}
	}
	return false
}

// Has reports whether a detail of type t exists.
func (r AnomalyDetectionResult) Has(t AnomalyType) bool {
	for _, d := range r.Details {
		if d.Type == t {
			return true
		}
	}
	return false
}
