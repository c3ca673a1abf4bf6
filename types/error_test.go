package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai").
		WithStage(StageProvider)

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Equal(t, StageProvider, err.Stage)
	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "root")
}

func TestGetErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	inner := NewRateLimitError("groq", "slow down")
	wrapped := fmt.Errorf("call failed: %w", inner)

	assert.Equal(t, ErrRateLimited, GetErrorCode(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsCode(wrapped, ErrRateLimited))
	assert.False(t, IsCode(nil, ErrRateLimited))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestShorthandConstructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       *Error
		code      ErrorCode
		retryable bool
		status    int
	}{
		{"rate limit", NewRateLimitError("p", "m"), ErrRateLimited, true, 429},
		{"timeout", NewTimeoutError("p", "m"), ErrUpstreamTimeout, true, 504},
		{"server", NewServerError("p", "m"), ErrUpstreamError, true, 502},
		{"auth", NewAuthError("p", "m"), ErrUnauthorized, false, 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, "p", tt.err.Provider)
		})
	}

	v := NewInvalidRequestError("messages[%d] is empty", 2)
	assert.Equal(t, ErrInvalidRequest, v.Code)
	assert.Equal(t, StageValidation, v.Stage)
	assert.Equal(t, "messages[2] is empty", v.Message)
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	canceled := FromContext(context.Canceled)
	require.NotNil(t, canceled)
	assert.Equal(t, ErrCanceled, canceled.Code)
	assert.False(t, canceled.Retryable)

	deadline := FromContext(fmt.Errorf("wrap: %w", context.DeadlineExceeded))
	require.NotNil(t, deadline)
	assert.Equal(t, ErrUpstreamTimeout, deadline.Code)
	assert.True(t, deadline.Retryable)

	assert.Nil(t, FromContext(errors.New("other")))
}

func TestFallbackError(t *testing.T) {
	t.Parallel()

	first := NewRateLimitError("a", "429")
	second := NewServerError("b", "503")
	fe := &FallbackError{Attempts: []AttemptError{
		{Index: 0, Candidate: "a/x", Err: first},
		{Index: 1, Candidate: "b/y", Err: second},
	}}

	var err error = fmt.Errorf("create: %w", fe)

	assert.Equal(t, ErrFallbackExhausted, GetErrorCode(err))
	assert.True(t, errors.Is(err, first))
	assert.True(t, errors.Is(err, second))
	assert.Equal(t, second, fe.Last())
	assert.Equal(t, StageExhausted, fe.Stage())
	assert.Contains(t, fe.Error(), "a/x")
	assert.Contains(t, fe.Error(), "b/y")

	var got *FallbackError
	require.True(t, errors.As(err, &got))
	assert.Len(t, got.Attempts, 2)

	assert.Nil(t, (&FallbackError{}).Last())
}
