package extraction

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies an extraction failure.
type ErrorKind string

const (
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindMalformed   ErrorKind = "malformed_response"
	ErrKindUnavailable ErrorKind = "capability_unavailable"
)

// Error is an extraction failure. The pipeline recovers from every kind
// by substituting empty facts; the kind exists for logging and metrics.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the given kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// classifyError maps transport-level failures onto the extraction error
// taxonomy. Context deadlines and network timeouts become timeout errors,
// everything else is treated as the capability being unavailable.
func classifyError(err error) *Error {
	var extErr *Error
	if errors.As(err, &extErr) {
		return extErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrKindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(ErrKindTimeout, err)
	}
	return NewError(ErrKindUnavailable, err)
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error should be retried.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
