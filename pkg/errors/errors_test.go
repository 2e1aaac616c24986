package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyAPIError_StatusCode429(t *testing.T) {
	err := ClassifyAPIError("openai", "gpt-4", 429, "slow down")
	assert.Equal(t, KindRateLimit, err.Kind)
}

func TestClassifyAPIError_KeywordMatch(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"rate limit phrase", "Rate Limit exceeded, try again"},
		{"too many requests", "error: too many requests"},
		{"quota exceeded", "Your quota exceeded for this month"},
		{"overloaded", "the model is currently overloaded"},
		{"throttle", "request was throttled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyAPIError("anthropic", "claude-3", 503, tt.body)
			assert.Equal(t, KindRateLimit, err.Kind)
		})
	}
}

func TestClassifyAPIError_PlainApiError(t *testing.T) {
	err := ClassifyAPIError("openai", "gpt-4", 500, "internal server error")
	assert.Equal(t, KindApiError, err.Kind)
}

func TestLLMError_Error(t *testing.T) {
	err := NewRateLimitError("openai", "gpt-4", "slow down")
	msg := err.Error()
	assert.Contains(t, msg, "rate_limit")
	assert.Contains(t, msg, "openai")
	assert.Contains(t, msg, "gpt-4")
}

func TestLLMError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewRequestError("openai", "gpt-4", cause)
	assert.ErrorIs(t, err, cause)
}

func TestLLMError_Is(t *testing.T) {
	a := NewRateLimitError("openai", "gpt-4", "x")
	b := NewRateLimitError("anthropic", "claude-3", "y")
	assert.ErrorIs(t, a, b)

	c := NewApiError("openai", "gpt-4", "z")
	assert.NotErrorIs(t, a, c)
}

func TestIsRateLimit(t *testing.T) {
	assert.True(t, IsRateLimit(NewRateLimitError("p", "m", "x")))
	assert.False(t, IsRateLimit(NewApiError("p", "m", "x")))
	assert.False(t, IsRateLimit(errors.New("plain error")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConfigError, KindOf(NewConfigError("no instances")))
	assert.Equal(t, KindApiError, KindOf(errors.New("plain error")))
}
