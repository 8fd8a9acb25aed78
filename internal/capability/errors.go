package capability

import "fmt"

// ErrorKind classifies an adapter failure.
type ErrorKind string

const (
	ErrKindNotFound     ErrorKind = "not_found"
	ErrKindSystemError  ErrorKind = "system_error"
	ErrKindInvalidInput ErrorKind = "invalid_input"
)

// Error is an adapter-level failure. It is surfaced per action and never
// escalates to entry-level failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the given kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
