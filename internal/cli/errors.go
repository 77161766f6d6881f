// SPDX-License-Identifier: MIT

// Package cli implements pacer's command-line surface (spec.md §6): option
// parsing, the typed-error-to-exit-code mapping spec.md §7 requires, and
// the dispatch that wires the engine, runner, executor, gc, and status
// packages together for a single invocation.
package cli

import (
	"errors"
	"fmt"

	"github.com/corvax-io/pacer/internal/engine"
	"github.com/corvax-io/pacer/internal/filelock"
)

// Exit codes (spec.md §7, fixed wire contract).
const (
	ExitOK             = 0
	ExitIOError        = 70
	ExitLockContention = 75
	ExitBusySkip       = 76
	ExitQueued         = 77
	ExitUsageError     = 78
	ExitTimeout        = 79
)

// IOError wraps an I/O or OS failure (exit 70): state directory not a real
// directory, unable to create files, clock unavailable.
type IOError struct{ Err error }

func (e *IOError) Error() string { return fmt.Sprintf("io error: %v", e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by this package's dispatch functions to
// the wire exit code spec.md §7 names for it. Errors not recognized here
// (a bug, not a modeled condition) map to ExitIOError, the same "something
// went wrong talking to the OS" bucket the teacher's main.go falls back
// to for unexpected errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch {
	case errors.Is(err, engine.ErrUsage):
		return ExitUsageError
	case errors.Is(err, filelock.ErrContention):
		return ExitLockContention
	default:
		return ExitIOError
	}
}
