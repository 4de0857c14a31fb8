package llm

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

type errorRule struct {
	code     string
	message  string
	statuses []int
	patterns []string
}

// Rules are checked in order; the first matching pattern wins.
var errorRules = []errorRule{
	{common.CodeAIRateLimit, "The AI service is busy right now. Please try again shortly.",
		[]int{http.StatusTooManyRequests},
		[]string{"rate_limit", "rate limit", "status 429", "too many requests", "resource_exhausted", "quota"}},
	{common.CodeAIInvalidFile, "The file could not be read by the AI service.",
		nil,
		[]string{"invalid_file", "invalid file", "unsupported", "invalid image", "could not process image"}},
	{common.CodeAIFileNotFound, "The uploaded file could not be found.",
		[]int{http.StatusNotFound},
		[]string{"file_not_found", "file not found", "status 404", "not_found"}},
	{common.CodeAIProcessingTimeout, "The AI service took too long to read the invoice.",
		[]int{http.StatusRequestTimeout, http.StatusGatewayTimeout},
		[]string{"timeout", "timed out", "deadline exceeded", "deadline_exceeded"}},
}

var transientPatterns = []string{
	"status 500", "status 502", "status 503", "status 504",
	"unavailable", "overloaded", "internal server error", "bad gateway",
	"connection reset", "eof",
}

// Classify maps a provider error onto an application error code.
// Provider text stays in the cause; the message is always plain language.
func Classify(err error) *common.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := common.AsAppError(err); ok {
		return appErr
	}
	if errors.Is(err, context.Canceled) {
		return common.Aborted(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewAppError(common.CodeAIProcessingTimeout, "The AI service took too long to read the invoice.", err)
	}

	var se *StatusError
	if errors.As(err, &se) {
		for _, r := range errorRules {
			if slices.Contains(r.statuses, se.Status) {
				return common.NewAppError(r.code, r.message, err)
			}
		}
	}

	msg := strings.ToLower(err.Error())
	for _, r := range errorRules {
		for _, p := range r.patterns {
			if strings.Contains(msg, p) {
				return common.NewAppError(r.code, r.message, err)
			}
		}
	}
	return common.NewAppError(common.CodeAIExtractionFailed, "The invoice details could not be extracted.", err)
}

// IsTransient reports whether a failed attempt is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	switch common.CodeOf(err) {
	case common.CodeAIRateLimit, common.CodeAIProcessingTimeout:
		return true
	case "":
	default:
		// classified non-retryable codes
		if _, ok := common.AsAppError(err); ok && common.CodeOf(err) != common.CodeAIExtractionFailed {
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	for _, p := range append([]string{"rate_limit", "rate limit", "status 429", "too many requests", "timeout", "timed out", "deadline exceeded"}, transientPatterns...) {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
