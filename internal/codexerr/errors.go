// Package codexerr defines the closed set of error kinds the Codex Engine
// core raises across its boundary. Internal causes may be wrapped for
// diagnostics, but callers are expected to pattern-match on Kind, not on
// error strings.
package codexerr

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy entries from spec.md §7.
type Kind string

const (
	ManifestMissing       Kind = "ManifestMissing"
	ManifestMalformed     Kind = "ManifestMalformed"
	ManifestSchemaInvalid Kind = "ManifestSchemaInvalid"
	ArtifactMissing       Kind = "ArtifactMissing"
	IntegrityMismatch     Kind = "IntegrityMismatch"
	SecurityViolation     Kind = "SecurityViolation"
	StoreOpenFailed       Kind = "StoreOpenFailed"
	InvalidInput          Kind = "InvalidInput"
	EmbedderFailure       Kind = "EmbedderFailure"
	EmbedderShape         Kind = "EmbedderShape"
	SourceMissing         Kind = "SourceMissing"
	BuildFailed           Kind = "BuildFailed"
	NotInitialized        Kind = "NotInitialized"
)

// SecurityReason narrows a SecurityViolation error.
type SecurityReason string

const (
	PathTraversal SecurityReason = "path_traversal"
	Symlink       SecurityReason = "symlink"
)

// Error is the concrete type every Codex Engine boundary error satisfies.
type Error struct {
	Kind   Kind
	Reason SecurityReason // only set for SecurityViolation
	Detail string         // e.g. the failing path or stage name
	Cause  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg = fmt.Sprintf("%s{%s}", msg, e.Reason)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target carries the same Kind, so callers can write
// errors.Is(err, codexerr.New(codexerr.IntegrityMismatch, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a boundary error with no wrapped cause.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds a boundary error around an internal cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// Security builds a SecurityViolation error with its reason populated.
func Security(reason SecurityReason, detail string) *Error {
	return &Error{Kind: SecurityViolation, Reason: reason, Detail: detail}
}

// KindOf extracts the Kind from err, returning "" if err is not (or does
// not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
