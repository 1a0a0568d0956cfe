package regions

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrUnderflow means a label was closed more times than it was
	// opened: the boundary stream is malformed. Returned from finalize,
	// never panicked.
	ErrUnderflow = errors.New("boundary stream closes a label more often than it opens it")
	// ErrUnclosed means the boundary stream ended with labels still
	// open. Like ErrUnderflow it signals a malformed stream, typically
	// a producer that wrote one of a mark's two records.
	ErrUnclosed = errors.New("boundary stream ends with labels still open")
	// ErrScopeNotFinalized means a consolidated read was attempted on a
	// scope that was never finalized.
	ErrScopeNotFinalized = errors.New("scope has not been finalized")
	// ErrCorruptRecord means stored bytes do not decode as a boundary
	// record, region row, or key.
	ErrCorruptRecord = errors.New("stored record is malformed")
)

// ConsolidationError provides structured error information for engine
// operations.
type ConsolidationError struct {
	Op       string // Operation that failed (e.g., "Insert", "FinishFile")
	Scope    Scope  // Affected scope (if scoped)
	HasScope bool
	Label    Label // Affected label (if label-specific)
	HasLabel bool
	Offset   uint32 // Offset at which the failure was detected
	HasOff   bool
	Cause    error  // Underlying error
	Context  string // Additional context
}

// Error implements the error interface.
func (e *ConsolidationError) Error() string {
	msg := e.Op
	if e.HasScope {
		msg += fmt.Sprintf(" file=%d run=%d", e.Scope.File, e.Scope.Run)
	}
	if e.HasLabel {
		msg += fmt.Sprintf(" label=%d", e.Label)
	}
	if e.HasOff {
		msg += fmt.Sprintf(" offset=%d", e.Offset)
	}
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ConsolidationError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error or its cause.
func (e *ConsolidationError) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

// ErrorBuilder provides a fluent interface for building
// ConsolidationErrors.
type ErrorBuilder struct {
	err ConsolidationError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: ConsolidationError{Op: op}}
}

// Scope attaches the affected scope.
func (b *ErrorBuilder) Scope(s Scope) *ErrorBuilder {
	b.err.Scope = s
	b.err.HasScope = true
	return b
}

// Label attaches the affected label.
func (b *ErrorBuilder) Label(l Label) *ErrorBuilder {
	b.err.Label = l
	b.err.HasLabel = true
	return b
}

// Offset attaches the offset at which the failure was detected.
func (b *ErrorBuilder) Offset(o uint32) *ErrorBuilder {
	b.err.Offset = o
	b.err.HasOff = true
	return b
}

// Context sets additional context information.
func (b *ErrorBuilder) Context(ctx string) *ErrorBuilder {
	b.err.Context = ctx
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

// IsInvariantViolation reports whether the error signals a malformed
// boundary stream rather than an I/O failure.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrUnderflow) || errors.Is(err, ErrUnclosed)
}
