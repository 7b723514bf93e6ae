// Package errors provides error handling for PixelPipe.
//
// It re-exports github.com/cockroachdb/errors so callers get stack traces,
// wrapping and hints from a single import, and defines the sentinel errors
// that make up the conversion error taxonomy.
//
//	if err := scan(dir); err != nil {
//	    return errors.Wrap(err, "failed to scan input directory")
//	}
//
//	if errors.Is(err, errors.ErrDirectoryNotFound) {
//	    // report before any task starts
//	}
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

	AssertionFailedf = crdb.AssertionFailedf
)

// User-facing messages and details
var (
	WithHint        = crdb.WithHint
	WithHintf       = crdb.WithHintf
	WithDetail      = crdb.WithDetail
	WithDetailf     = crdb.WithDetailf
	GetAllHints     = crdb.GetAllHints
	FlattenHints    = crdb.FlattenHints
	WithSafeDetails = crdb.WithSafeDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Conversion error taxonomy. Wrap or Mark these to add context while
// keeping errors.Is working across the call chain.
var (
	// ErrDirectoryNotFound indicates the input directory is missing or unreadable.
	ErrDirectoryNotFound = New("directory not found")

	// ErrUnsupportedFormat indicates the requested output format is not recognized.
	ErrUnsupportedFormat = New("unsupported format")

	// ErrConversion marks a single file that could not be decoded, encoded or written.
	ErrConversion = New("conversion failed")

	// ErrEngineFault indicates a batch-level precondition failed (e.g. output directory creation).
	ErrEngineFault = New("engine fault")

	// ErrAlreadyRunning is returned when a batch is started on a non-idle engine.
	ErrAlreadyRunning = New("batch already running")
)

// IsFatal reports whether err prevents a batch from running at all.
func IsFatal(err error) bool {
	return IsAny(err, ErrDirectoryNotFound, ErrUnsupportedFormat, ErrEngineFault)
}
