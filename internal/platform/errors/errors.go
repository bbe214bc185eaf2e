// Package errors provides the unified error taxonomy used across the
// event/signal/card/outbox pipeline: InvalidInput, Degraded, Retryable,
// and Fatal, each with a fixed HTTP status mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the four error taxonomy kinds named by the pipeline's
// error handling design: InvalidInput, Degraded, Retryable, Fatal.
type Kind string

const (
	// KindInvalidInput marks malformed or missing caller input.
	KindInvalidInput Kind = "invalid_input"
	// KindDegraded marks a best-effort result produced despite partial
	// upstream failure; never raised to end-user callers.
	KindDegraded Kind = "degraded"
	// KindRetryable marks a transient failure eligible for backoff retry.
	KindRetryable Kind = "retryable"
	// KindFatal marks a startup/contract violation that should crash the process.
	KindFatal Kind = "fatal"
)

// PipelineError is a structured error carrying a Kind, a message, and an
// optional wrapped cause plus arbitrary diagnostic details.
type PipelineError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// WithDetail adds a diagnostic detail and returns the same error for chaining.
func (e *PipelineError) WithDetail(key string, value interface{}) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a PipelineError of the given kind.
func New(kind Kind, message string) *PipelineError {
	return &PipelineError{Kind: kind, Message: message}
}

// Wrap wraps an existing error with a PipelineError of the given kind.
func Wrap(kind Kind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

// InvalidInput builds a KindInvalidInput error, e.g. a missing post.type
// or a malformed event_key/address in a read API.
func InvalidInput(field, reason string) *PipelineError {
	return New(KindInvalidInput, "invalid input").
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// Degraded builds a KindDegraded error tagged with the pipeline stage that
// produced the degradation (schema_invalid, template_missing, cache_unavailable, ...).
func Degraded(stage, reason string) *PipelineError {
	return New(KindDegraded, "degraded result").
		WithDetail("stage", stage).
		WithDetail("reason", reason)
}

// Retryable builds a KindRetryable error for transient failures: network,
// 5xx/429, lock conflicts, statement timeouts.
func Retryable(operation string, err error) *PipelineError {
	return Wrap(KindRetryable, "retryable failure", err).
		WithDetail("operation", operation)
}

// Fatal builds a KindFatal error for startup/contract violations.
func Fatal(message string, err error) *PipelineError {
	return Wrap(KindFatal, message, err)
}

// NotFound is a convenience error for unknown resources (404).
func NotFound(resource, id string) *PipelineError {
	return New(KindInvalidInput, "resource not found").
		WithDetail("resource", resource).
		WithDetail("id", id).
		WithDetail("http_status", http.StatusNotFound)
}

// RateLimited marks a rate-limit rejection (429).
func RateLimited(limit int, window string) *PipelineError {
	return New(KindInvalidInput, "rate limit exceeded").
		WithDetail("limit", limit).
		WithDetail("window", window).
		WithDetail("http_status", http.StatusTooManyRequests)
}

// HTTPStatus maps an error's Kind (and optional http_status detail override)
// to the status code read APIs should return, per the "User-visible
// failure" table: 400 InvalidInput, 404 for unknown keys, 429 on rate
// limit, 200 with degrade/stale flags for Degraded, 503 for dependency-down
// readiness checks.
func HTTPStatus(err error) int {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError
	}
	if status, ok := pe.Details["http_status"].(int); ok {
		return status
	}
	switch pe.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindDegraded:
		return http.StatusOK
	case KindRetryable:
		return http.StatusServiceUnavailable
	case KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// As extracts a *PipelineError from an error chain.
func As(err error) (*PipelineError, bool) {
	var pe *PipelineError
	ok := errors.As(err, &pe)
	return pe, ok
}

// IsKind reports whether err is a PipelineError of the given kind.
func IsKind(err error, kind Kind) bool {
	pe, ok := As(err)
	return ok && pe.Kind == kind
}
