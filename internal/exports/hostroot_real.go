//go:build linux

package exports

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

// autofsSuperMagic is the statfs f_type value for autofs mounts
// (AUTOFS_SUPER_MAGIC in linux/magic.h). golang.org/x/sys/unix does not
// export it as a named constant, so it is reproduced here.
const autofsSuperMagic = 0x0187

// autofsProbeTimeout is the wall-clock bound on the autofs open probe.
const autofsProbeTimeout = 200 * time.Millisecond

// ProbeArg is the hidden first argument that dispatches a re-executed
// instance of the launcher binary into the autofs-probe helper instead of
// its normal CLI, mirroring argv0-based multicall dispatch except the
// dispatch key here is an explicit reserved argument rather than an
// aliased binary name, since the probe is an implementation detail of
// this binary rather than a wrapped external command.
const ProbeArg = "__pv_probe_autofs_open"

// ProbeSelfExe returns the path to the currently running executable, used
// to re-exec a bounded probe child. Overridable in tests.
var ProbeSelfExe = os.Executable

// RunProbeOpen performs the actual bounded-risk syscall: open path
// read-only, non-blocking, requiring a directory. It is meant to be called
// from main() when os.Args[1] == ProbeArg, in a process that will be killed
// by its parent if it hangs. It never returns if successful or not: it
// always calls os.Exit so that no other part of the re-executed binary
// (flag parsing, config loading) runs in the probe child.
func RunProbeOpen(path string) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_DIRECTORY, 0)
	if err != nil {
		os.Exit(1)
	}

	_ = unix.Close(fd)
	os.Exit(0)
}

// RealRoot resolves paths against the real filesystem root.
type RealRoot struct{}

func NewRealRoot() RealRoot { return RealRoot{} }

func (RealRoot) Lstat(path string) (FileKind, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return KindMissing, err
		}

		return KindMissing, err
	}

	mode := info.Mode()

	switch {
	case mode&os.ModeSymlink != 0:
		return KindSymlink, nil
	case mode.IsDir():
		return KindDir, nil
	case mode.IsRegular():
		return KindRegular, nil
	case mode&os.ModeSocket != 0:
		return KindSocket, nil
	default:
		return KindOther, nil
	}
}

func (RealRoot) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

func (RealRoot) IsAutofs(path string) (bool, error) {
	var stat unix.Statfs_t

	err := unix.Statfs(path, &stat)
	if err != nil {
		return false, fmt.Errorf("statfs %s: %w", path, err)
	}

	return int64(stat.Type) == autofsSuperMagic, nil
}

func (RealRoot) ProbeOpen(path string) error {
	self, err := ProbeSelfExe()
	if err != nil {
		return fmt.Errorf("resolving self executable for autofs probe: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), autofsProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, self, ProbeArg, path)

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("autofs probe of %s timed out after %s", path, autofsProbeTimeout)
	}

	if err != nil {
		return fmt.Errorf("autofs probe of %s failed: %w", path, err)
	}

	return nil
}
