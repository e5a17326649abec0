//go:build linux

package adverb

import (
	"fmt"
	"os"
	"runtime"
)

// FDAssignment is one --assign-fd target=source request: the guest process
// must see source's open file description at fd target.
type FDAssignment struct {
	Target int
	Source int
}

// BuildChildFiles assembles the explicit fd table for the guest process:
// index i of the returned slice becomes fd i in the child, the same
// contract os.StartProcess's ProcAttr.Files uses. Indices 0-2 default to
// stdin/stdout/stderr unless an assignment overrides them; passFDs and
// lockFDs are carried through at their own fd number unchanged. Any index
// the caller never touches is left nil, which os.StartProcess closes in
// the child -- this is the close-on-exec sweep, done by the fork/exec
// builder itself instead of by a manual fcntl pass after Start.
//
// Close-on-exec clearing happens the same way: os.StartProcess always
// clears it on every fd it places into the child, including lock fds,
// which is how a lock opened with the ordinary (close-on-exec-by-default)
// os.OpenFile survives into the guest.
func BuildChildFiles(assignments []FDAssignment, passFDs []int, lockFDs []int, stdin, stdout, stderr *os.File) ([]*os.File, error) {
	files := []*os.File{stdin, stdout, stderr}

	set := func(target, source int) error {
		if target < 0 {
			return fmt.Errorf("invalid fd target %d", target)
		}

		if source < 0 {
			return fmt.Errorf("invalid fd source %d for target %d", source, target)
		}

		for len(files) <= target {
			files = append(files, nil)
		}

		files[target] = borrowFile(source)

		return nil
	}

	for _, a := range assignments {
		if err := set(a.Target, a.Source); err != nil {
			return nil, err
		}
	}

	for _, fd := range passFDs {
		if err := set(fd, fd); err != nil {
			return nil, err
		}
	}

	for _, fd := range lockFDs {
		if err := set(fd, fd); err != nil {
			return nil, err
		}
	}

	return files, nil
}

// borrowFile wraps fd without taking ownership of it: the finalizer that
// os.NewFile installs is disabled, since the fd's real owner (a Lock, an
// inherited stdio fd, or the process that handed us a --pass-fd number)
// closes it on its own schedule, not when this borrowed view is collected.
func borrowFile(fd int) *os.File {
	f := os.NewFile(uintptr(fd), fmt.Sprintf("fd%d", fd))
	runtime.SetFinalizer(f, nil)

	return f
}
