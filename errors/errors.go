// Package errors provides error handling for sdzerobot.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints for messages that end up on wiki pages
//
// Usage:
//
//	if err := client.Edit(ctx, req); err != nil {
//	    return errors.Wrapf(err, "save %s", req.Title)
//	}
//
//	// Add hints for report authors
//	return errors.WithHint(err, "test the query on Quarry first")
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

	// WithSecondaryError attaches an error for reporting without making it
	// visible to Is/As
	WithSecondaryError = crdb.WithSecondaryError

	// Mark makes err match reference in Is without changing its message
	Mark = crdb.Mark
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
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Sentinel errors shared by the pipeline and the runners.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested page or record does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrTemplateNotFound indicates the report template text is no longer on
	// the page, usually because the page was edited while the query ran
	ErrTemplateNotFound = New("report template not found on page")

	// ErrProtectedPage indicates the bot is not allowed to edit the page
	ErrProtectedPage = New("page is protected")

	// ErrTooManyConnections indicates the replica refused the connection
	// because the tool account is out of connection slots
	ErrTooManyConnections = New("too many database connections")

	// ErrBusy indicates the page is already being processed
	ErrBusy = New("already in progress")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
