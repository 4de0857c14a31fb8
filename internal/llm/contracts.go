package llm

import (
	"context"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// Image is one raster attached to a model request.
type Image struct {
	Data     []byte
	MIMEType string
}

// ProviderRequest is what a vision provider receives.
type ProviderRequest struct {
	SystemPrompt string
	UserPrompt   string
	Images       []Image
	Schema       map[string]any
}

// Provider submits images to a vision model and returns its raw JSON answer.
// Errors are returned as-is; the client classifies them.
type Provider interface {
	Name() string
	Extract(ctx context.Context, req ProviderRequest) ([]byte, error)
}

type ExtractRequest struct {
	Images            []Image
	FileName          string
	PageCount         int
	DefaultCurrency   string
	AllowedCategories []string
}

// InvoiceExtractor is the interface the pipeline depends on.
type InvoiceExtractor interface {
	Extract(ctx context.Context, req ExtractRequest) (entity.ExtractedInvoiceData, []byte /*rawJSON*/, error)
	ProviderName() string
}
