package db

import (
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
)

// Error is the single failure type produced by this package. Code is a
// result code in the engine's own numeric space; Message is either the
// engine's diagnostic text or, for errors this layer constructs itself
// (binding-shape violations, use after close), a descriptive message
// under ResultMisuse.
type Error struct {
	Code    sqlite.ResultCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("db: %v: %s", e.Code, e.Message)
}

// translate converts an engine error into *Error. A nil error stays
// nil; ok/row/done are success codes and never reach this function.
func translate(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: sqlite.ErrCode(err), Message: err.Error()}
}

// misuse constructs a misuse-coded error for failures detected by this
// layer before any native call is issued.
func misuse(format string, args ...any) *Error {
	return &Error{Code: sqlite.ResultMisuse, Message: fmt.Sprintf(format, args...)}
}

// ErrCode returns the result code carried by err, or ResultError if
// err is not an *Error from this package. A nil error maps to ResultOK.
func ErrCode(err error) sqlite.ResultCode {
	if err == nil {
		return sqlite.ResultOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return sqlite.ResultError
}
