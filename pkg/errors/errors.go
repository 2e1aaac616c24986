// Package errors defines the closed error taxonomy every provider adapter
// and the dispatcher's retry classification reason about. It is the
// teacher's pkg/errors.LLMError re-keyed to the six kinds the dispatch
// engine distinguishes (request/api/rate-limit/parse/provider-disabled/
// config) instead of HTTP-status-oriented ones.
package errors

import (
	"fmt"
	"strings"
)

// Kind is the closed set of error classifications the Dispatcher reasons
// about. Never add a value without updating the Dispatcher's classify step.
type Kind string

const (
	KindRequestError     Kind = "request_error"
	KindApiError         Kind = "api_error"
	KindRateLimit        Kind = "rate_limit"
	KindParseError       Kind = "parse_error"
	KindProviderDisabled Kind = "provider_disabled"
	KindConfigError      Kind = "config_error"
)

// LLMError is the single error type every Adapter and the Manager return.
type LLMError struct {
	Kind     Kind
	Message  string
	Provider string
	Model    string
	// Cause, if present, is the underlying transport/parse error wrapped by
	// this LLMError; exposed via Unwrap so errors.Is/As keep working.
	Cause error
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	if e.Provider == "" && e.Model == "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s)", e.Kind, e.Message, e.Provider, e.Model)
}

// Unwrap exposes the wrapped transport/parse error, if any.
func (e *LLMError) Unwrap() error { return e.Cause }

// Is reports whether target is an *LLMError with the same Kind, so callers
// can use errors.Is against a zero-value sentinel built with one of the
// constructors below.
func (e *LLMError) Is(target error) bool {
	other, ok := target.(*LLMError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newErr(kind Kind, provider, model, message string) *LLMError {
	return &LLMError{Kind: kind, Message: message, Provider: provider, Model: model}
}

// NewRequestError reports a transport failure (connection reset, timeout,
// DNS, context cancellation). cause, if non-nil, is preserved via Unwrap.
func NewRequestError(provider, model string, cause error) *LLMError {
	msg := "request failed"
	if cause != nil {
		msg = cause.Error()
	}
	e := newErr(KindRequestError, provider, model, msg)
	e.Cause = cause
	return e
}

// NewApiError reports a non-2xx response that is not a rate limit, or a 2xx
// response with an empty/malformed body.
func NewApiError(provider, model, message string) *LLMError {
	return newErr(KindApiError, provider, model, message)
}

// NewRateLimitError reports HTTP 429 or a keyword-matched throttling signal.
func NewRateLimitError(provider, model, message string) *LLMError {
	return newErr(KindRateLimit, provider, model, message)
}

// NewParseError reports a JSON/SSE payload that did not match the expected
// schema for a response critical to the outcome.
func NewParseError(provider, model, message string) *LLMError {
	return newErr(KindParseError, provider, model, message)
}

// NewProviderDisabledError reports that the chosen Instance was marked
// disabled at call time.
func NewProviderDisabledError(provider, model string) *LLMError {
	return newErr(KindProviderDisabled, provider, model, "provider instance is disabled")
}

// NewConfigError reports a Manager-construction or routing-time
// configuration problem: an unmapped task, no eligible instance, or
// debug-transcript I/O failure.
func NewConfigError(message string) *LLMError {
	return newErr(KindConfigError, "", "", message)
}

// rateLimitKeywords are matched case-insensitively against an API error body
// to recognize throttling signals that upstream providers report via a
// non-429 status (or a 2xx envelope) carrying a descriptive message, rather
// than HTTP 429 itself.
var rateLimitKeywords = []string{
	"rate limit",
	"too many requests",
	"quota exceeded",
	"overloaded",
	"throttle",
}

// ClassifyAPIError turns an HTTP status code and response body into either a
// RateLimit or an ApiError, applying both the 429 rule and the keyword-match
// rule from the error taxonomy.
func ClassifyAPIError(provider, model string, statusCode int, body string) *LLMError {
	if statusCode == 429 || ContainsRateLimitKeyword(body) {
		return NewRateLimitError(provider, model, body)
	}
	return NewApiError(provider, model, body)
}

// ContainsRateLimitKeyword reports whether body contains one of the
// case-insensitive throttling keywords the taxonomy recognizes.
func ContainsRateLimitKeyword(body string) bool {
	lower := strings.ToLower(body)
	for _, kw := range rateLimitKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsRateLimit reports whether err is an *LLMError of kind RateLimit.
func IsRateLimit(err error) bool {
	le, ok := err.(*LLMError)
	return ok && le.Kind == KindRateLimit
}

// KindOf returns the Kind of err if it is an *LLMError, or KindApiError as a
// conservative default for foreign errors (treated as failover-triggering,
// never as a rate limit).
func KindOf(err error) Kind {
	if le, ok := err.(*LLMError); ok {
		return le.Kind
	}
	return KindApiError
}
