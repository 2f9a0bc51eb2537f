// Package errors provides the error taxonomy used across the Chloe gateway.
// Business errors are never surfaced through the webhook HTTP status (the
// messaging platform requires a 200 acknowledgment for every delivery), so
// unlike a typical API server the types here exist for classification and
// logging, and to decide what — if anything — gets posted back to the
// originating channel.
//
// Basic usage:
//
//	err := errors.NewTransient("completion backend returned 503", cause)
//	if errors.TypeOf(err) == errors.Transient { ... }
package errors

import (
	"fmt"

	"go.uber.org/zap"
)

// DefaultLogger is the default zap logger instance used throughout the package.
// It is initialized to a production configuration but can be overridden using SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger allows setting a custom zap logger instance.
// If nil is provided, the function will do nothing to prevent
// accidentally disabling logging.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType categorizes failures in the event-to-completion pipeline.
type ErrorType string

const (
	// Transient represents failures that may succeed on a later delivery:
	// network blips, 5xx responses from the completion backend, an open
	// circuit breaker.
	Transient ErrorType = "transient"

	// Fatal represents failures that will not improve by retrying the same
	// delivery: attachment download failures, corrupt documents, 4xx
	// rejections from the completion backend.
	Fatal ErrorType = "fatal"

	// MalformedResponse represents a completion backend reply whose JSON
	// shape does not match the expected choices[0].message.content form.
	MalformedResponse ErrorType = "malformed_response"

	// RateLimited represents an HTTP 429 from the completion backend. It is
	// internal to the completion client's retry loop and normally never
	// escapes it.
	RateLimited ErrorType = "rate_limited"

	// Unknown is returned by TypeOf for errors outside this taxonomy.
	Unknown ErrorType = "unknown"
)

// ChloeError is the error type carried through the gateway pipeline. It
// pairs a taxonomy type with a human-readable message and an optional
// underlying cause.
type ChloeError struct {
	// Type categorizes the error for pipeline decisions
	Type ErrorType

	// Message is a human-readable error description
	Message string

	// err is the underlying error
	err error
}

// Error implements the error interface. It returns a string that
// combines the error type, message, and underlying error (if any).
func (e *ChloeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, implementing the unwrap
// interface for error chains.
func (e *ChloeError) Unwrap() error {
	return e.err
}

// Is implements error matching for errors.Is, allowing type-based
// error matching while ignoring other fields.
func (e *ChloeError) Is(target error) bool {
	t, ok := target.(*ChloeError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// LogError logs an error with its pipeline context.
func LogError(logger *zap.Logger, err error, requestID string) {
	if chloeErr, ok := err.(*ChloeError); ok {
		logger.Error("pipeline error",
			zap.String("error_type", string(chloeErr.Type)),
			zap.String("message", chloeErr.Message),
			zap.String("request_id", requestID),
			zap.Error(chloeErr.err),
		)
	} else {
		logger.Error("unexpected error",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
	}
}
