package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantRetryable bool
	}{
		{"unauthorized", errors.New("401 Unauthorized"), ErrTypeInvalidKey, false},
		{"invalid api key", errors.New("invalid api key provided"), ErrTypeInvalidKey, false},
		{"rate limit", errors.New("429: rate limit reached"), ErrTypeRateLimited, true},
		{"timeout", errors.New("context deadline exceeded"), ErrTypeTimeout, true},
		{"service down", errors.New("503 service unavailable"), ErrTypeUnavailable, true},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrTypeUnavailable, true},
		{"bad request", errors.New("400 invalid request"), ErrTypeBadRequest, false},
		{"unknown", errors.New("something odd"), ErrTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err)
			require.NotNil(t, classified)
			assert.Equal(t, tt.wantType, classified.Type)
			assert.Equal(t, tt.wantRetryable, classified.Retryable)
		})
	}
}

func TestClassifyErrorNil(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))
}

func TestClassifyErrorPassthrough(t *testing.T) {
	original := NewError(ErrTypeRateLimited, "rate limited", true, nil)
	classified := ClassifyError(original)
	assert.Same(t, original, classified)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(ErrTypeTimeout, "request timed out", true, cause)
	assert.ErrorIs(t, err, cause)
}

func TestInvalidKeyNeverRetryable(t *testing.T) {
	err := ClassifyError(errors.New("authentication failed for request"))
	assert.Equal(t, ErrTypeInvalidKey, err.Type)
	assert.False(t, err.IsRetryable())
}
