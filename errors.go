package flexbed

import (
	"errors"
	"fmt"

	"github.com/mdclyburn/flexbed/internal/executor"
)

// Code re-exports the executor's failure-kind enum at the public API
// boundary, so callers never need to import internal/executor directly
// to branch on it.
type Code = executor.Code

const (
	CodeReconfigure = executor.CodeReconfigure
	CodeLoad        = executor.CodeLoad
	CodeReset       = executor.CodeReset
	CodeExecution   = executor.CodeExecution
	CodeIO          = executor.CodeIO
	CodeNoSuchMeter = executor.CodeNoSuchMeter
	CodeDecode      = executor.CodeDecode
)

// Error is a structured testbed error: which test it happened during,
// what kind of failure it was, and the underlying cause.
type Error struct {
	Op    string // the test ID the failure happened during, or a setup step name
	Code  Code
	Inner error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("flexbed: %s: %v", e.Code, e.Inner)
	}
	return fmt.Sprintf("flexbed: %s: %s: %v", e.Op, e.Code, e.Inner)
}

func (e *Error) Unwrap() error { return e.Inner }

// Is compares by Code, matching another *Error with the same Code
// regardless of Op or Inner — the same coarse equivalence the queue
// package's error type uses.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// NewError constructs an Error for the given test/operation and cause.
func NewError(op string, code Code, inner error) *Error {
	return &Error{Op: op, Code: code, Inner: inner}
}

// FromFailure converts an internal executor failure into a public
// Error, or returns nil if err isn't one.
func FromFailure(testID string, err error) error {
	if err == nil {
		return nil
	}
	var f *executor.Failure
	if errors.As(err, &f) {
		return &Error{Op: testID, Code: f.Code, Inner: f.Cause}
	}
	return err
}

// IsCode reports whether err is a flexbed Error of the given Code.
func IsCode(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}
