package llm

import (
	"encoding/base64"
	"strings"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// DataURL encodes an image as a base64 data URL for vision requests.
func DataURL(mimeType string, data []byte) string {
	mt := strings.TrimSpace(mimeType)
	if mt == "" {
		mt = constants.MIMETypeJPEG
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ImageFormat is the short subtype ("jpeg", "png") some SDKs expect.
func ImageFormat(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if _, sub, ok := strings.Cut(mt, "/"); ok && sub != "" {
		return sub
	}
	return "jpeg"
}

// ExtractedLogFields returns the headline values of an extraction for structured logs.
func ExtractedLogFields(d entity.ExtractedInvoiceData) []any {
	return []any{
		"supplier", deref(d.SupplierName),
		"invoice_number", deref(d.InvoiceNumber),
		"date", deref(d.InvoiceDate),
		"total", derefF(d.TotalAmount),
		"currency", deref(d.Currency),
		"category", deref(d.SuggestedCategory),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefF(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
