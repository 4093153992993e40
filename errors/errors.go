// Package errors provides error handling for wptmeta.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints shown to the person running an update
//
// Usage:
//
//	// Wrap with context
//	if err := parse(line); err != nil {
//	    return errors.Wrapf(err, "line %d", lineNo)
//	}
//
//	// Mark with a sentinel so callers can branch on it
//	return errors.Mark(err, errors.ErrMalformedLog)
//
//	// Check errors
//	if errors.Is(err, errors.ErrUnknownTest) {
//	    // skip the event
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Aggregation
var (
	CombineErrors = crdb.CombineErrors
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors shared across packages.
// Wrap these with Wrap/Wrapf or attach them with Mark; check with Is.
var (
	// ErrUnknownTest indicates a log event references a test id absent from the catalog
	ErrUnknownTest = New("unknown test")

	// ErrMalformedLog indicates a log line could not be decoded
	ErrMalformedLog = New("malformed log line")

	// ErrInvalidManifest indicates an expectation manifest could not be parsed
	ErrInvalidManifest = New("invalid manifest")

	// ErrInvalidCatalog indicates a test catalog file is malformed or fails schema validation
	ErrInvalidCatalog = New("invalid catalog")

	// ErrConflict indicates observations that cannot be expressed by a conditional value
	ErrConflict = New("conflicting observations")

	// ErrLocked indicates another writer holds the metadata directory
	ErrLocked = New("metadata directory locked")
)

// IsMalformedLog reports whether err is or wraps ErrMalformedLog
func IsMalformedLog(err error) bool {
	return err != nil && Is(err, ErrMalformedLog)
}

// IsUnknownTest reports whether err is or wraps ErrUnknownTest
func IsUnknownTest(err error) bool {
	return err != nil && Is(err, ErrUnknownTest)
}

// NewMalformedLogError creates a malformed-log error with a formatted message
func NewMalformedLogError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrMalformedLog)
}

// NewInvalidManifestError creates an invalid-manifest error with a formatted message
func NewInvalidManifestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidManifest)
}

// NewInvalidCatalogError creates an invalid-catalog error with a formatted message
func NewInvalidCatalogError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidCatalog)
}
