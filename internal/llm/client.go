package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// Config tunes the retrying extraction client.
type Config struct {
	MaxAttempts     int
	RetryDelay      time.Duration
	DefaultCurrency string
	// Lenient runs the sanitizer before schema validation.
	Lenient bool
}

// Client wraps a Provider with prompt building, retries and response checks.
type Client struct {
	provider Provider
	cfg      Config
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewClient(provider Provider, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "AUD"
	}
	return &Client{provider: provider, cfg: cfg, log: logger, sleep: sleepCtx}
}

func (c *Client) ProviderName() string { return c.provider.Name() }

// Extract submits the images and returns the structured fields plus the accepted raw JSON.
// Transient failures are retried sequentially; an unreadable answer is not.
func (c *Client) Extract(ctx context.Context, req ExtractRequest) (entity.ExtractedInvoiceData, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	if len(req.Images) == 0 {
		return entity.ExtractedInvoiceData{}, nil, common.NewAppError(common.CodeAIInvalidFile,
			"No page images were available to read.", common.ErrInvalidInput)
	}
	if req.DefaultCurrency == "" {
		req.DefaultCurrency = c.cfg.DefaultCurrency
	}
	if len(req.AllowedCategories) == 0 {
		req.AllowedCategories = constants.AsStringSlice()
	}

	schema := BuildInvoiceJSONSchema(req.AllowedCategories)
	preq := ProviderRequest{
		SystemPrompt: BuildSystemPrompt(req),
		UserPrompt:   BuildUserPrompt(req),
		Images:       req.Images,
		Schema:       schema,
	}

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"provider", c.provider.Name(),
		"images", len(req.Images),
		"pages", req.PageCount,
		"file", req.FileName,
		"job_id", common.JobIDFromContext(ctx),
		"user_id", common.UserIDFromContext(ctx),
	)

	var lastErr *common.AppError
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return entity.ExtractedInvoiceData{}, nil, common.Aborted(err)
		}

		raw, err := c.provider.Extract(ctx, preq)
		if err == nil && len(strings.TrimSpace(string(raw))) == 0 {
			err = errNoResponse
		}
		if err != nil {
			lastErr = Classify(err)
			if lastErr.Code == common.CodeUploadAborted || ctx.Err() != nil {
				return entity.ExtractedInvoiceData{}, nil, common.Aborted(err)
			}
			retry := IsTransient(err) && attempt < c.cfg.MaxAttempts
			c.log.Warn("llm.extract.attempt_failed",
				"req_id", rid,
				"attempt", attempt,
				"code", lastErr.Code,
				"retry", retry,
				"error", err,
			)
			if !retry {
				break
			}
			if err := c.sleep(ctx, c.cfg.RetryDelay); err != nil {
				return entity.ExtractedInvoiceData{}, nil, common.Aborted(err)
			}
			continue
		}

		out, accepted, perr := c.parse(rid, schema, raw)
		if perr != nil {
			return entity.ExtractedInvoiceData{}, raw, perr
		}
		c.log.Info("llm.extract.ok", append([]any{
			"req_id", rid,
			"attempt", attempt,
			"elapsed_ms", time.Since(start).Milliseconds(),
		}, ExtractedLogFields(out)...)...)
		return out, accepted, nil
	}

	c.log.Error("llm.extract.failed",
		"req_id", rid,
		"code", lastErr.Code,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return entity.ExtractedInvoiceData{}, nil, lastErr
}

func (c *Client) parse(rid string, schema map[string]any, raw []byte) (entity.ExtractedInvoiceData, []byte, error) {
	content := []byte(cleanJSONBlock(string(raw)))
	if c.cfg.Lenient {
		cleaned, _, err := NormalizeAndSanitizeJSON(content, c.log)
		if err != nil {
			c.log.Error("llm.extract.sanitize_failed", "req_id", rid, "error", err)
			return entity.ExtractedInvoiceData{}, nil, invalidResponse(err)
		}
		content = cleaned
	}
	if err := ValidateJSONAgainstSchema(schema, content); err != nil {
		c.log.Error("llm.extract.schema_validation_failed", "req_id", rid, "error", err, "content", string(content))
		return entity.ExtractedInvoiceData{}, nil, invalidResponse(err)
	}
	var out entity.ExtractedInvoiceData
	if err := json.Unmarshal(content, &out); err != nil {
		c.log.Error("llm.extract.unmarshal_failed", "req_id", rid, "error", err)
		return entity.ExtractedInvoiceData{}, nil, invalidResponse(err)
	}
	return out, content, nil
}

var errNoResponse = common.WrapError(common.ErrInternal, "no response from model")

func invalidResponse(cause error) *common.AppError {
	return common.NewAppError(common.CodeAIInvalidResponse, "invalid AI response format", cause)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
