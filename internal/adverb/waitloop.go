//go:build linux

package adverb

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ExitOutcome reports how the primary child ended, used to derive the
// Adverb's own exit status.
type ExitOutcome struct {
	ExitedNormally bool
	ExitStatus     int
	Signaled       bool
	Signal         int
	Unknown        bool
}

// ExitCode implements the Adverb's exit-status mapping.
func (o ExitOutcome) ExitCode() int {
	switch {
	case o.ExitedNormally:
		return o.ExitStatus
	case o.Signaled:
		return 128 + o.Signal
	default:
		return 70 // EX_SOFTWARE: primary child ended in an unknown way.
	}
}

// WaitLoopConfig configures the subreaping wait loop.
type WaitLoopConfig struct {
	PrimaryPID int
	// IdleTimeout starts once the primary child has exited; if other
	// descendants remain when it elapses, they are sent SIGTERM+SIGCONT.
	// Zero disables the idle phase (reap forever / until no descendants).
	IdleTimeout time.Duration
	// TerminateTimeout starts after SIGTERM+SIGCONT is sent; if
	// descendants still remain when it elapses, SIGKILL+SIGCONT is sent.
	// Zero skips SIGTERM: SIGKILL+SIGCONT is sent as soon as the idle
	// timeout elapses.
	TerminateTimeout time.Duration
}

// Run reaps every descendant via wait(2) until the primary child has
// exited and no further descendants remain (or the terminate cascade
// above has run its course), returning the primary child's outcome.
func Run(cfg WaitLoopConfig) ExitOutcome {
	var (
		primaryOutcome ExitOutcome
		primaryDone    bool
		idleDeadline   time.Time
		idleArmed      bool
		termDeadline   time.Time
		termArmed      bool
	)

	for {
		var status unix.WaitStatus

		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil {
			// ECHILD means no children remain at all, reaped or alive: the
			// descendant count, not just the primary child, has dropped to
			// zero, so the wait loop is done regardless of timeouts.
			if errors.Is(err, unix.ECHILD) {
				return primaryOutcome
			}

			time.Sleep(20 * time.Millisecond)

			continue
		}

		if pid == 0 {
			// WNOHANG with no state change: at least one child (possibly a
			// reparented descendant, since we are the subreaper) is still
			// alive.
			if primaryDone && cfg.IdleTimeout > 0 {
				if !idleArmed {
					idleDeadline = time.Now().Add(cfg.IdleTimeout)
					idleArmed = true
				} else if time.Now().After(idleDeadline) && !termArmed {
					if cfg.TerminateTimeout <= 0 {
						broadcast(unix.SIGKILL)
						return primaryOutcome
					}

					broadcast(unix.SIGTERM)
					termDeadline = time.Now().Add(cfg.TerminateTimeout)
					termArmed = true
				} else if termArmed && time.Now().After(termDeadline) {
					broadcast(unix.SIGKILL)
					return primaryOutcome
				}
			}

			time.Sleep(20 * time.Millisecond)

			continue
		}

		if pid == cfg.PrimaryPID {
			primaryOutcome = outcomeFromStatus(status)
			primaryDone = true
		}
	}
}

func outcomeFromStatus(status unix.WaitStatus) ExitOutcome {
	switch {
	case status.Exited():
		return ExitOutcome{ExitedNormally: true, ExitStatus: status.ExitStatus()}
	case status.Signaled():
		return ExitOutcome{Signaled: true, Signal: int(status.Signal())}
	default:
		return ExitOutcome{Unknown: true}
	}
}

func broadcast(sig unix.Signal) {
	// Signal the whole process group so descendants that ignored the
	// initial forward still receive the cascade.
	_ = unix.Kill(0, sig)
	_ = unix.Kill(0, unix.SIGCONT)
}
