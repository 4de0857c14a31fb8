package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorChain(t *testing.T) {
	cause := errors.New("s3: access denied")
	err := fmt.Errorf("stage: %w", NewAppError(CodeUploadFailed, "Upload failed.", cause))

	assert.Equal(t, CodeUploadFailed, CodeOf(err))
	assert.True(t, IsCode(err, CodeUploadFailed))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Upload failed.", PublicMessage(err))
	assert.NotContains(t, PublicMessage(err), "access denied")

	assert.Equal(t, "", CodeOf(cause))
	assert.False(t, IsCode(nil, CodeUploadFailed))
	assert.Equal(t, "", PublicMessage(nil))
	assert.NotEmpty(t, PublicMessage(cause))
}

func TestAborted(t *testing.T) {
	err := Aborted(context.Canceled)
	assert.Equal(t, CodeUploadAborted, err.Code)
	assert.True(t, IsContextError(err))
	assert.False(t, IsContextError(errors.New("x")))
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{NewAppError(CodeFileTooLarge, "File is too large.", nil), codes.InvalidArgument},
		{NewAppError(CodeInvalidFileType, "Unsupported type.", nil), codes.InvalidArgument},
		{Aborted(context.Canceled), codes.Canceled},
		{NewAppError(CodeAIRateLimit, "Busy.", nil), codes.FailedPrecondition},
		{fmt.Errorf("job: %w", ErrNotFound), codes.NotFound},
		{NewAppError("x", "bad id", ErrInvalidInput), codes.InvalidArgument},
		{fmt.Errorf("job is COMPLETED: %w", ErrFailedPrecondition), codes.FailedPrecondition},
		{errors.New("driver exploded"), codes.Internal},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tt := range tests {
		st, _ := status.FromError(ToStatus(tt.err))
		assert.Equal(t, tt.code, st.Code(), tt.err.Error())
		assert.NotContains(t, st.Message(), "driver exploded")
	}
	assert.Nil(t, ToStatus(nil))
}
