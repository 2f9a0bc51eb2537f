package errors

import (
	"errors"
)

// New creates a ChloeError with the given parameters. It is a
// general-purpose constructor that allows full control over the error's
// fields. For most cases, you should use one of the specialized
// constructors below.
func New(errType ErrorType, message string, err error) *ChloeError {
	return &ChloeError{
		Type:    errType,
		Message: message,
		err:     err,
	}
}

// NewTransient creates a Transient error. Use this for failures that a
// later delivery may not hit, such as:
//   - Transport-level errors reaching the completion backend
//   - 5xx responses from the completion backend
//   - An open circuit breaker
func NewTransient(message string, err error) *ChloeError {
	return &ChloeError{
		Type:    Transient,
		Message: message,
		err:     err,
	}
}

// NewFatal creates a Fatal error. Use this for failures that retrying the
// same delivery cannot fix, such as:
//   - Attachment download failures
//   - Corrupt or unreadable documents
//   - 4xx rejections from the completion backend
func NewFatal(message string, err error) *ChloeError {
	return &ChloeError{
		Type:    Fatal,
		Message: message,
		err:     err,
	}
}

// NewMalformedResponse creates a MalformedResponse error for completion
// backend replies whose JSON shape does not match the expected form.
func NewMalformedResponse(message string, err error) *ChloeError {
	return &ChloeError{
		Type:    MalformedResponse,
		Message: message,
		err:     err,
	}
}

// NewRateLimited creates a RateLimited error. The completion client
// consumes these inside its retry loop; callers outside the client should
// never observe one.
func NewRateLimited(message string, err error) *ChloeError {
	return &ChloeError{
		Type:    RateLimited,
		Message: message,
		err:     err,
	}
}

// TypeOf classifies an error, following wrapped chains. Errors outside the
// taxonomy report Unknown.
func TypeOf(err error) ErrorType {
	var chloeErr *ChloeError
	if errors.As(err, &chloeErr) {
		return chloeErr.Type
	}
	return Unknown
}

// As is a wrapper around errors.As for better error type assertion
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
