package usecase

import "fmt"

type ErrorCode string

const (
	// ErrorInvalidInput covers malformed identifiers and empty content.
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorNotFound means the conversation has no details row. It is a
	// distinct reportable outcome, not a generic failure.
	ErrorNotFound ErrorCode = "NOT_FOUND"
	// ErrorStore covers any store adapter failure; subtypes are not inspected.
	ErrorStore ErrorCode = "STORE_ERROR"
	// ErrorInternal is the catch-all for unexpected failures.
	ErrorInternal ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
