// Package aiperr defines the error taxonomy shared by the attestation
// pipeline. Constructive operations (those that build an artifact) fail
// fast with one of these kinds; predicate operations (those that answer a
// yes/no question about an artifact) never return them — they return false
// instead, per the "verify anything anyone hands me, never crash" contract.
package aiperr

import (
	"errors"
	"fmt"
)

// Kind classifies a structural failure in the attestation pipeline.
type Kind string

const (
	// KindEncoding marks malformed hex, malformed base64, or non-UTF-8
	// input where UTF-8 was required.
	KindEncoding Kind = "encoding"
	// KindCanonicalization marks cycles, non-string mapping keys,
	// non-finite numbers, or unsupported value types during canonical
	// serialization.
	KindCanonicalization Kind = "canonicalization"
	// KindIndex marks a Merkle leaf index outside the valid range.
	KindIndex Kind = "index"
	// KindStructural marks a missing required field in a typed input.
	KindStructural Kind = "structural"
)

// Error is the concrete error type raised by constructive operations.
type Error struct {
	Kind Kind
	Op   string // e.g. "commitment: compute", "merkle: build tree"
	Err  error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is against the sentinel Kind values below: a caller
// can write errors.Is(err, aiperr.ErrCanonicalization) without caring which
// component raised it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Err != nil {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values usable with errors.Is(err, aiperr.ErrEncoding) and so on.
var (
	ErrEncoding         = &Error{Kind: KindEncoding}
	ErrCanonicalization = &Error{Kind: KindCanonicalization}
	ErrIndex            = &Error{Kind: KindIndex}
	ErrStructural       = &Error{Kind: KindStructural}
)

// New constructs a new Error of the given kind for the given operation.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Encoding is a convenience constructor for KindEncoding errors.
func Encoding(op string, cause error) error { return New(KindEncoding, op, cause) }

// Canonicalization is a convenience constructor for KindCanonicalization errors.
func Canonicalization(op string, cause error) error { return New(KindCanonicalization, op, cause) }

// Index is a convenience constructor for KindIndex errors.
func Index(op string, cause error) error { return New(KindIndex, op, cause) }

// Structural is a convenience constructor for KindStructural errors.
func Structural(op string, cause error) error { return New(KindStructural, op, cause) }

// As is a thin wrapper over errors.As for callers that prefer not to import
// the standard errors package solely for this.
func As(err error, target **Error) bool { return errors.As(err, target) }
