// Package errors provides the error taxonomy for report ingestion.
//
// Structural failures (KindMalformed) abort a whole report. Record failures
// (KindInvalidSeverityScore, KindMissingField) drop a single record and let
// the rest of the report through.
package errors

import (
	"errors"
	"fmt"
)

// =============================================================================
// Base Error Types
// =============================================================================

// Error is the base error type for all ingestion errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "nexpose.Parse")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMalformed
	KindInvalidSeverityScore
	KindMissingField
	KindUnsupportedFormat
	KindInventory
	KindInvalidInput
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindInvalidSeverityScore:
		return "invalid_severity_score"
	case KindMissingField:
		return "missing_required_field"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindInventory:
		return "inventory"
	case KindInvalidInput:
		return "invalid_input"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// =============================================================================
// Constructors
// =============================================================================

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op or Message), error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: GetKind(err), Op: op, Err: err}
}

// Malformed builds a KindMalformed error for op.
func Malformed(op, message string, err error) error {
	return &Error{Kind: KindMalformed, Op: op, Message: message, Err: err}
}

// MissingField builds a KindMissingField error naming the absent field.
func MissingField(op, field string) error {
	return &Error{Kind: KindMissingField, Op: op, Message: fmt.Sprintf("missing required field %q", field)}
}

// =============================================================================
// Error Checkers
// =============================================================================

// GetKind returns the Kind of the error, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsMalformed reports whether err aborts a whole report.
func IsMalformed(err error) bool {
	return GetKind(err) == KindMalformed
}

// IsRecordError reports whether err only invalidates a single record.
func IsRecordError(err error) bool {
	switch GetKind(err) {
	case KindInvalidSeverityScore, KindMissingField:
		return true
	default:
		return false
	}
}

// IsUnsupportedFormat checks if the error is an unknown format tag.
func IsUnsupportedFormat(err error) bool {
	return GetKind(err) == KindUnsupportedFormat
}

// =============================================================================
// Common Errors
// =============================================================================

var (
	// ErrMalformed is the terminal error for an unparseable report.
	ErrMalformed = &Error{Kind: KindMalformed, Message: "malformed report"}

	// ErrInvalidSeverityScore is returned for numeric severities outside 0-10.
	ErrInvalidSeverityScore = &Error{Kind: KindInvalidSeverityScore, Message: "severity score out of range"}

	// ErrMissingRequiredField is returned when a record lacks a mandatory field.
	ErrMissingRequiredField = &Error{Kind: KindMissingField, Message: "missing required field"}

	// ErrUnsupportedFormat is returned for unknown format tags.
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat, Message: "unsupported report format"}

	// ErrInvalidConfig is returned for invalid configuration.
	ErrInvalidConfig = &Error{Kind: KindInvalidInput, Message: "invalid configuration"}
)
