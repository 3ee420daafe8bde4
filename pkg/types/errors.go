package types

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates the error kinds KuzuMemory's components raise at
// their boundaries. Callers branch on kind, not on message text.
type ErrorKind string

const (
	KindValidation     ErrorKind = "ValidationError"
	KindConfiguration  ErrorKind = "ConfigurationError"
	KindDatabaseLocked ErrorKind = "DatabaseError.Locked"
	KindDatabaseCorrupt ErrorKind = "DatabaseError.Corrupted"
	KindSchemaMismatch ErrorKind = "DatabaseError.SchemaMismatch"
	KindQueryFailed    ErrorKind = "DatabaseError.QueryFailed"
	KindPoolExhausted  ErrorKind = "PoolExhausted"
	KindRecallFailed   ErrorKind = "RecallFailed"
	KindExtractionFailed ErrorKind = "ExtractionFailed"
	KindPerformanceExceeded ErrorKind = "PerformanceExceeded"
	KindArchiveNotFound ErrorKind = "ArchiveNotFound"
)

// Error is the typed error KuzuMemory's public API returns. Low-level
// failures are translated into one of these at the component boundary; the
// hot path never lets a raw driver error escape.
type Error struct {
	Kind ErrorKind
	// Field and Reason are populated for KindValidation.
	Field  string
	Reason string
	// Op, ActualMS, BudgetMS are populated for KindPerformanceExceeded.
	Op       string
	ActualMS float64
	BudgetMS float64

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindValidation:
		return fmt.Sprintf("%s: field %q: %s", e.Kind, e.Field, e.Reason)
	case KindPerformanceExceeded:
		return fmt.Sprintf("%s: %s took %.2fms, budget %.2fms", e.Kind, e.Op, e.ActualMS, e.BudgetMS)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// use errors.Is(err, &types.Error{Kind: types.KindPoolExhausted}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewValidationError builds a KindValidation error for field/reason.
func NewValidationError(field, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

// NewConfigurationError wraps a configuration failure.
func NewConfigurationError(err error) *Error {
	return &Error{Kind: KindConfiguration, Err: err}
}

// NewDatabaseError translates a backend failure into a kinded database
// error. kind must be one of the KindDatabase* constants.
func NewDatabaseError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewPoolExhausted builds a KindPoolExhausted error.
func NewPoolExhausted(err error) *Error {
	return &Error{Kind: KindPoolExhausted, Err: err}
}

// NewRecallFailed builds a KindRecallFailed error wrapping the last
// strategy's failure once every strategy has failed.
func NewRecallFailed(err error) *Error {
	return &Error{Kind: KindRecallFailed, Err: err}
}

// NewExtractionFailed builds a KindExtractionFailed error.
func NewExtractionFailed(err error) *Error {
	return &Error{Kind: KindExtractionFailed, Err: err}
}

// NewPerformanceExceeded builds a KindPerformanceExceeded error for op,
// raised only when strict monitoring is enabled.
func NewPerformanceExceeded(op string, actualMS, budgetMS float64) *Error {
	return &Error{Kind: KindPerformanceExceeded, Op: op, ActualMS: actualMS, BudgetMS: budgetMS}
}

// NewArchiveNotFound builds a KindArchiveNotFound error.
func NewArchiveNotFound(archiveID string) *Error {
	return &Error{Kind: KindArchiveNotFound, Err: fmt.Errorf("archive %q not found", archiveID)}
}

// Sentinel values for errors.Is checks against a bare Kind, without needing
// to construct a full *Error.
var (
	ErrPoolExhausted  = &Error{Kind: KindPoolExhausted}
	ErrRecallFailed   = &Error{Kind: KindRecallFailed}
	ErrArchiveNotFound = &Error{Kind: KindArchiveNotFound}
	ErrDatabaseLocked = &Error{Kind: KindDatabaseLocked}
)
