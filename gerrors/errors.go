// Package gerrors defines the error surface Grafeo exposes at API boundaries.
//
// Every user-visible error carries a Kind (one of the sentinel values
// below), a human message, and optionally a source Span and a Hint. The
// error surface is stable across release versions within a major, so new
// Kinds are only ever added, never renamed or removed.
package gerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling. Callers should switch
// on Kind (via As) rather than matching on message text.
type Kind int

const (
	// KindUnknown is never returned by Grafeo; it is the zero value used
	// when a *Error is constructed without an explicit kind.
	KindUnknown Kind = iota
	KindParse
	KindSchema
	KindConstraintViolation
	KindNotFound
	KindWriteConflict
	KindTransactionAborted
	KindResourceExhausted
	KindCorruption
	KindIO
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindSchema:
		return "SchemaError"
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindNotFound:
		return "NotFound"
	case KindWriteConflict:
		return "WriteConflict"
	case KindTransactionAborted:
		return "TransactionAborted"
	case KindResourceExhausted:
		return "ResourceExhausted"
	case KindCorruption:
		return "Corruption"
	case KindIO:
		return "IoError"
	case KindUnsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Span anchors an error to a location in source text, for parsers and the
// planner to report span-preserving diagnostics (spec §6: "Parsers MUST
// preserve source spans on each node for error reporting").
type Span struct {
	Start, End   int
	Line, Column int
}

// Error is the concrete error type returned across the Grafeo public API.
type Error struct {
	Kind    Kind
	Message string
	Span    *Span
	Hint    string

	// Wrapped holds an underlying cause (e.g. an *os.PathError for IoError),
	// preserved for errors.Unwrap.
	Wrapped error
}

func (e *Error) Error() string {
	if e.Span != nil {
		return fmt.Sprintf("%s: %s (line %d, col %d)", e.Kind, e.Message, e.Span.Line, e.Span.Column)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is allows errors.Is(err, gerrors.NotFound) style checks against the
// package-level sentinels declared below, by comparing Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: cause}
}

// WithSpan returns a copy of e with Span attached.
func (e *Error) WithSpan(span Span) *Error {
	cp := *e
	cp.Span = &span
	return &cp
}

// WithHint returns a copy of e with a remediation Hint attached.
func (e *Error) WithHint(hint string) *Error {
	cp := *e
	cp.Hint = hint
	return &cp
}

// Sentinel instances for errors.Is comparisons against a specific kind,
// independent of message text. Mirrors the teacher's flat sentinel-error
// list (pkg/storage/types.go) generalized to carry Kind.
var (
	NotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	WriteConflict       = &Error{Kind: KindWriteConflict, Message: "write conflict"}
	TransactionAborted  = &Error{Kind: KindTransactionAborted, Message: "transaction aborted"}
	ResourceExhausted   = &Error{Kind: KindResourceExhausted, Message: "resource exhausted"}
	Corruption          = &Error{Kind: KindCorruption, Message: "corruption detected"}
	Unsupported         = &Error{Kind: KindUnsupported, Message: "unsupported operation"}
	ErrAlreadyExists    = &Error{Kind: KindConstraintViolation, Message: "already exists"}
	ErrStorageClosed    = &Error{Kind: KindIO, Message: "storage closed"}
	ErrIterationStopped = errors.New("grafeo: iteration stopped")
)
