package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
)

// Config for the Gemini client.
type Config struct {
	APIKey      string
	Model       string // e.g., "gemini-1.5-flash"
	Temperature float32
}

// Client implements llm.Provider for Google Gemini.
type Client struct {
	client *genai.Client
	cfg    Config
	log    *slog.Logger
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{client: client, cfg: cfg, log: logger}, nil
}

func (c *Client) Name() string { return "gemini:" + c.cfg.Model }

// Extract sends the page images with a JSON response MIME type.
func (c *Client) Extract(ctx context.Context, req llm.ProviderRequest) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(c.cfg.Temperature)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}

	c.log.Info("llm.gemini.start", "req_id", rid, "model", c.cfg.Model, "images", len(req.Images))

	resp, err := model.GenerateContent(ctx, buildParts(req)...)
	if err != nil {
		c.log.Error("llm.gemini.generate_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("failed to generate content: %w", statusError(err))
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		c.log.Error("llm.gemini.empty_response", "req_id", rid, "error", err)
		return nil, err
	}

	c.log.Info("llm.gemini.ok", "req_id", rid, "content_bytes", len(text),
		"elapsed_ms", time.Since(start).Milliseconds())
	return []byte(cleanJSONBlock(text)), nil
}

// Close releases resources held by the client
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func buildParts(req llm.ProviderRequest) []genai.Part {
	parts := make([]genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, genai.ImageData(llm.ImageFormat(img.MIMEType), img.Data))
	}
	user := req.UserPrompt
	if len(req.Schema) > 0 {
		user += "\n\nJSON Schema:\n" + schemaJSON(req.Schema)
	}
	return append(parts, genai.Text(user))
}

var errNoCandidates = errors.New("no response candidates from gemini")

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errNoCandidates
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no response content from gemini")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no response text parts from gemini")
	}

	return strings.Join(parts, ""), nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func schemaJSON(schema map[string]any) string {
	b, err := json.Marshal(schema)
	if err != nil {
		return "{}"
	}
	return string(b)
}

var grpcHTTPStatus = map[codes.Code]int{
	codes.ResourceExhausted: http.StatusTooManyRequests,
	codes.NotFound:          http.StatusNotFound,
	codes.DeadlineExceeded:  http.StatusGatewayTimeout,
	codes.Unavailable:       http.StatusServiceUnavailable,
	codes.Internal:          http.StatusInternalServerError,
	codes.InvalidArgument:   http.StatusBadRequest,
	codes.PermissionDenied:  http.StatusForbidden,
	codes.Unauthenticated:   http.StatusUnauthorized,
}

// statusError lifts REST and gRPC API failures into an llm.StatusError so they classify by code.
func statusError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &llm.StatusError{Provider: "gemini", Status: gerr.Code, Message: gerr.Message}
	}
	if st, ok := status.FromError(err); ok {
		if code, known := grpcHTTPStatus[st.Code()]; known {
			return &llm.StatusError{Provider: "gemini", Status: code, Message: st.Message()}
		}
	}
	return err
}
