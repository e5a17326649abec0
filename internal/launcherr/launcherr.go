// Package launcherr defines the fixed set of error kinds used across the
// launcher core, and the exit-code mapping each kind implies.
package launcherr

import (
	"errors"
	"fmt"
)

// Kind is a closed enum of error categories. Every fatal or loggable error
// raised by the core carries exactly one Kind, so the exit-code mapping and
// the log-level mapping each live in one place.
type Kind int

const (
	// KindUsage covers invalid flag combinations, non-absolute paths where
	// absolute is required, malformed --assign-fd/--ld-preload arguments.
	KindUsage Kind = iota + 1
	// KindSetup covers failures before execve: opening a path, resolving a
	// symlink within loop limits, creating a temp directory, forking.
	KindSetup
	// KindPathNotFound is downgraded to an info log; the export is dropped.
	KindPathNotFound
	// KindPermissionDenied is downgraded to an info log; the export is dropped.
	KindPermissionDenied
	// KindReservedPath is a warning the first time, info-level afterwards.
	KindReservedPath
	// KindAutofsBlocked is an info-level log; the path is dropped.
	KindAutofsBlocked
	// KindLdconfigFailed is a warning; the Adverb falls back to the
	// caller-supplied LD_LIBRARY_PATH.
	KindLdconfigFailed
	// KindLocaleGenFailed is a warning; LOCPATH is not set.
	KindLocaleGenFailed
	// KindChildSpawnFailed is fatal inside the Adverb, exit 127.
	KindChildSpawnFailed
	// KindChildSignalled is reported as 128+signal from the Adverb.
	KindChildSignalled
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage error"
	case KindSetup:
		return "setup error"
	case KindPathNotFound:
		return "path not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindReservedPath:
		return "reserved path"
	case KindAutofsBlocked:
		return "autofs blocked"
	case KindLdconfigFailed:
		return "ldconfig failed"
	case KindLocaleGenFailed:
		return "locale-gen failed"
	case KindChildSpawnFailed:
		return "child spawn failed"
	case KindChildSignalled:
		return "child signalled"
	default:
		return "unknown error"
	}
}

// Exit status constants for the Adverb's exit-code mapping.
const (
	ExitUsage        = 64 // EX_USAGE
	ExitUnavailable  = 69 // EX_UNAVAILABLE
	ExitNotFound     = 127
	ExitSoftware     = 70 // EX_SOFTWARE
	ExitSignalledOff = 128
)

// ExitCode returns the process exit code implied by kind. It is a pure
// function of the kind, never of the wrapped cause.
func (k Kind) ExitCode() int {
	switch k {
	case KindUsage:
		return ExitUsage
	case KindSetup:
		return ExitUnavailable
	case KindChildSpawnFailed:
		return ExitNotFound
	default:
		return ExitSoftware
	}
}

// Error wraps a Kind with the path (if any) it concerns and the underlying
// cause. It implements error and supports errors.Is/errors.As via Unwrap.
type Error struct {
	Kind  Kind
	Path  string
	Cause error
}

func New(kind Kind, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Cause: cause}
}

func (e *Error) Error() string {
	if e.Path == "" {
		if e.Cause == nil {
			return e.Kind.String()
		}

		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	}

	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}

	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// ExitCode returns the exit code implied by e's Kind.
func (e *Error) ExitCode() int { return e.Kind.ExitCode() }

// KindOf extracts the Kind carried by err, if any, via errors.As.
func KindOf(err error) (Kind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}

	return 0, false
}

// IsAdvisory reports whether kind is downgraded to a log (never fatal):
// PathNotFound, PermissionDenied, ReservedPath, AutofsBlocked,
// LdconfigFailed, LocaleGenFailed.
func (k Kind) IsAdvisory() bool {
	switch k {
	case KindPathNotFound, KindPermissionDenied, KindReservedPath,
		KindAutofsBlocked, KindLdconfigFailed, KindLocaleGenFailed:
		return true
	default:
		return false
	}
}
