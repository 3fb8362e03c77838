package store

import (
	"errors"
	"fmt"
)

// Kind categorizes adapter errors.
type Kind string

const (
	// KindMissing means no such document (or revision).
	KindMissing Kind = "missing"
	// KindDeleted means the document exists but its winning revision is a
	// tombstone and no explicit revision was requested.
	KindDeleted Kind = "deleted"
	// KindConflict means a revision check failed: a stale parent revision
	// on a tree write, or a local-document compare-and-swap miss.
	KindConflict Kind = "conflict"
	// KindMissingStub means a document referenced an attachment digest
	// that is not in the attachment store.
	KindMissingStub Kind = "missing_stub"
	// KindStorage wraps a fault from the underlying SQL engine.
	KindStorage Kind = "storage"
)

// Error is the typed error returned by every public operation.
type Error struct {
	Kind    Kind
	Message string
	// Name preserves the underlying engine's error type for storage
	// faults.
	Name string

	err error
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

func errMissing() *Error {
	return &Error{Kind: KindMissing, Message: "missing"}
}

func errDeleted() *Error {
	return &Error{Kind: KindDeleted, Message: "deleted"}
}

func errConflict() *Error {
	return &Error{Kind: KindConflict, Message: "document update conflict"}
}

func errMissingStub(digest string) *Error {
	return &Error{
		Kind:    KindMissingStub,
		Message: fmt.Sprintf("unknown stub attachment with digest %s", digest),
	}
}

// storageErr translates an engine failure into a storage fault, keeping
// the engine's error type name and message for diagnostics. Typed adapter
// errors pass through unchanged so kinds survive the transaction
// boundary.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{
		Kind:    KindStorage,
		Message: err.Error(),
		Name:    fmt.Sprintf("%T", err),
		err:     err,
	}
}

func isKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// IsMissing reports whether err is a missing-document error.
func IsMissing(err error) bool { return isKind(err, KindMissing) }

// IsDeleted reports whether err is a deleted-document error.
func IsDeleted(err error) bool { return isKind(err, KindDeleted) }

// IsConflict reports whether err is a revision conflict.
func IsConflict(err error) bool { return isKind(err, KindConflict) }

// IsMissingStub reports whether err is a missing stub attachment error.
func IsMissingStub(err error) bool { return isKind(err, KindMissingStub) }
