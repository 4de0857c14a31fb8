package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Machine-readable failure codes surfaced to callers.
const (
	// file-level
	CodeFileTooLarge    = "file-too-large"
	CodeInvalidFileType = "invalid-file-type"

	// processing-level
	CodePDFProcessingFailed    = "pdf-processing-failed"
	CodeImageCompressionFailed = "image-compression-failed"

	// transport-level
	CodeUploadFailed        = "upload-failed"
	CodeAIExtractionFailed  = "ai-extraction-failed"
	CodeAIRateLimit         = "ai-rate-limit"
	CodeAIInvalidFile       = "ai-invalid-file"
	CodeAIFileNotFound      = "ai-file-not-found"
	CodeAIProcessingTimeout = "ai-processing-timeout"
	CodeAIInvalidResponse   = "ai-invalid-response"

	// job-level
	CodeUploadAborted = "upload-aborted"
	CodeSaveFailed    = "save-failed"

	// data-level (validation engine)
	CodeMissingTotal     = "missing-total"
	CodeMissingSupplier  = "missing-supplier"
	CodeCalculationError = "calculation-error"

	CodeConfigError = "CONFIG_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")

	ErrFailedPrecondition = errors.New("failed precondition")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the AppError code carried by err, or "" if there is none.
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// PublicMessage is the plain-language text safe to show an end user.
// Causes (provider bodies, driver errors) are never included.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr.Message
	}
	return "Something went wrong while processing the invoice."
}

// Aborted builds the error recorded when a job is cancelled mid-flight.
func Aborted(cause error) *AppError {
	return NewAppError(CodeUploadAborted, "Upload was cancelled before it finished.", cause)
}

// IsContextError reports whether err stems from cancellation or a deadline.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

func InternalErrorf(format string, args ...interface{}) error {
	return InternalError(fmt.Sprintf(format, args...))
}

// ToStatus maps an application error onto a gRPC status using only its public message.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && CodeOf(err) == "" {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, PublicMessageOr(err, "not found"))
	case errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, PublicMessageOr(err, "invalid input"))
	case errors.Is(err, ErrFailedPrecondition):
		return status.Error(codes.FailedPrecondition, PublicMessageOr(err, err.Error()))
	}
	switch CodeOf(err) {
	case CodeFileTooLarge, CodeInvalidFileType:
		return status.Error(codes.InvalidArgument, PublicMessage(err))
	case CodeUploadAborted:
		return status.Error(codes.Canceled, PublicMessage(err))
	case "":
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(codes.FailedPrecondition, PublicMessage(err))
}

// PublicMessageOr returns the AppError message, or fallback for plain errors.
func PublicMessageOr(err error, fallback string) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Message
	}
	return fallback
}
