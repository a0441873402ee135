package aiservice

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure at the call boundary. Kinds are
// assigned where the failure is observed (HTTP status, parse step), never by
// matching on message text downstream.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "AUTHENTICATION"
	KindRateLimit      ErrorKind = "RATE_LIMIT"
	KindTimeout        ErrorKind = "TIMEOUT"
	KindModelError     ErrorKind = "MODEL_ERROR"
	KindNetwork        ErrorKind = "NETWORK"
	KindValidation     ErrorKind = "VALIDATION_ERROR"
	KindUnknown        ErrorKind = "UNKNOWN"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// running it. Distinct from provider errors so callers can tell "provider
// said no" from "we stopped asking".
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ProviderError is the typed error surfaced by the AI provider boundary.
// RetryAfter is in seconds and only meaningful for KindRateLimit.
type ProviderError struct {
	Kind       ErrorKind
	Message    string
	Retryable  bool
	RetryAfter int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, retryable bool, format string, args ...interface{}) *ProviderError {
	return &ProviderError{Kind: kind, Message: fmt.Sprintf(format, args...), Retryable: retryable}
}

// KindOf extracts the kind from an error, defaulting to KindUnknown for
// untyped errors.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether an error may be retried. Untyped errors are
// treated as non-retryable, conservatively.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
