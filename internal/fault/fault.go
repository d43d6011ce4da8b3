// Package fault defines the error taxonomy shared by the HTTP surface,
// the speech pipeline and the widget client. Errors carry a structured
// Kind so callers branch on it instead of scraping message text.
package fault

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a failure by the recovery action it demands.
type Kind int

const (
	// KindUnknown covers anything not otherwise classified. Maps to 500.
	KindUnknown Kind = iota
	// KindValidation is malformed or missing input. Fails fast, no side effects.
	KindValidation
	// KindRateLimit means the caller exceeded the local request ceiling.
	// Always carries a wait duration.
	KindRateLimit
	// KindQuota means an upstream AI provider is saturated. Recovery is
	// automatic caller-driven retry with backoff, unlike KindRateLimit.
	KindQuota
	// KindConfig is a missing or malformed deployment secret. Not retryable.
	KindConfig
	// KindNetwork is a timeout or transport failure. Retry may help.
	KindNetwork
)

// String returns a short tag for log lines.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	case KindQuota:
		return "quota"
	case KindConfig:
		return "config"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Error is a classified failure. RetryAfter is set for rate-limit and
// quota kinds when a wait hint is known.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation is shorthand for a KindValidation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Config is shorthand for a KindConfig error.
func Config(message string) *Error {
	return New(KindConfig, message)
}

// RateLimited builds a KindRateLimit error carrying the wait duration.
func RateLimited(wait time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Message:    fmt.Sprintf("rate limit exceeded, retry in %s", wait.Round(time.Second)),
		RetryAfter: wait,
	}
}

// KindOf returns the structured kind of err, or the result of text-pattern
// classification for errors that do not carry one. The text fallback keeps
// the original branching behavior for raw provider errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ClassifyText(err.Error())
}

// ClassifyText inspects a failure description for quota and rate-limit
// markers. Providers that return plain errors still get routed to the
// backoff path this way.
func ClassifyText(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "quota"),
		strings.Contains(lower, "resource exhausted"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "429"):
		return KindQuota
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "deadline exceeded"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// IsQuota reports whether err is an upstream quota/saturation failure.
func IsQuota(err error) bool {
	return KindOf(err) == KindQuota
}

// RetryAfterOf extracts the wait hint from err, or zero if none.
func RetryAfterOf(err error) time.Duration {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.RetryAfter
	}
	return 0
}
