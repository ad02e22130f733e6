// Package ioerr classifies the failures a benchmark run can hit.
//
// Every kind is terminal to the run. The only recoverable condition,
// direct io being unsupported at open, never surfaces as an error; the
// reader downgrades to buffered io and tags its result instead.
package ioerr

import (
	"errors"
	"fmt"
)

// Kind identifies which phase of the run produced an error
type Kind int

const (
	// KindAllocation means aligned memory could not be obtained
	KindAllocation Kind = iota + 1

	// KindFilesystem covers directory reset and file creation/write failures
	KindFilesystem

	// KindOpen means a test file could not be opened
	KindOpen

	// KindRead covers mid-transfer failures and short positioned reads
	KindRead

	// KindPermission means a privileged operation was denied
	KindPermission
)

// String returns the name used in log and error output
func (k Kind) String() string {
	switch k {
	case KindAllocation:
		return "allocation"
	case KindFilesystem:
		return "filesystem"
	case KindOpen:
		return "open"
	case KindRead:
		return "read"
	case KindPermission:
		return "permission"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the concrete error type returned by the benchmark packages
type Error struct {
	Kind Kind   // failure class
	Op   string // operation being performed, e.g. "create" or "pread"
	Path string // file or directory involved, may be empty
	Err  error  // underlying cause
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s error: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Is reports whether any error in err's chain is an *Error of the given kind
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or 0
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
