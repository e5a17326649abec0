//go:build linux

// Package adverb implements the in-container supervisor: it resets
// signal dispositions, becomes a subreaper, acquires advisory locks,
// stages per-ABI preload symlink directories, regenerates the dynamic
// linker cache, generates locales, execve's the guest command, and runs
// the reaping wait loop.
package adverb

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// forwardedSignals are reset to default disposition and unblocked at
// startup, then given a handler that forwards to the primary child (or
// reraises with the default disposition if there is no child yet).
var forwardedSignals = []os.Signal{
	unix.SIGHUP,
	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGTERM,
	unix.SIGUSR1,
	unix.SIGUSR2,
}

// SignalForwarder resets signal dispositions to default and, once armed,
// forwards any of forwardedSignals to the primary child.
type SignalForwarder struct {
	ch       chan os.Signal
	childPID int
	armed    bool
}

// NewSignalForwarder resets all of forwardedSignals to their default
// disposition, unblocks them, and begins listening.
func NewSignalForwarder() *SignalForwarder {
	for _, s := range forwardedSignals {
		signal.Reset(s)
	}

	ch := make(chan os.Signal, len(forwardedSignals))
	signal.Notify(ch, forwardedSignals...)

	return &SignalForwarder{ch: ch}
}

// Arm records the primary child's pid; signals received from this point
// forward are delivered to it instead of reraised against this process.
func (f *SignalForwarder) Arm(pid int) {
	f.childPID = pid
	f.armed = true
}

// Run forwards signals until done is closed. It must run in its own
// goroutine.
func (f *SignalForwarder) Run(done <-chan struct{}) {
	for {
		select {
		case sig := <-f.ch:
			f.deliver(sig)
		case <-done:
			signal.Stop(f.ch)
			return
		}
	}
}

func (f *SignalForwarder) deliver(sig os.Signal) {
	sysSig, ok := sig.(syscall.Signal)
	if !ok {
		return
	}

	unixSig := unix.Signal(sysSig)

	if f.armed && f.childPID > 0 {
		_ = unix.Kill(f.childPID, unixSig)
		return
	}

	// No child yet: reraise against ourselves with the default
	// disposition restored.
	signal.Reset(sig)
	_ = unix.Kill(os.Getpid(), unixSig)
}

// ArrangeExitWithParent requests SIGTERM via the Linux parent-death signal
// when our parent exits.
func ArrangeExitWithParent() error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGTERM), 0, 0, 0)
}

// EnableSubreaper marks this process as a subreaper
// so orphaned descendants reparent here instead of to pid 1.
func EnableSubreaper() error {
	return unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
}
