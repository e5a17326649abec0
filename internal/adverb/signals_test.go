//go:build linux

package adverb_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/pressure-vessel/launcher/internal/adverb"
)

// Exercises the real os/signal.Notify -> deliver path: that channel only
// ever carries syscall.Signal values, never golang.org/x/sys/unix.Signal,
// so this is the one test that would have caught an assertion to the
// wrong type.
func TestSignalForwarderForwardsRealSignalToChild(t *testing.T) {
	shPath, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}

	dir := t.TempDir()
	marker := filepath.Join(dir, "got-term")

	script := "trap 'touch " + marker + "; exit 0' TERM; while :; do sleep 0.05; done"

	cmd := exec.Command(shPath, "-c", script)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start child: %v", err)
	}

	defer func() { _ = cmd.Process.Kill() }()

	forwarder := adverb.NewSignalForwarder()
	done := make(chan struct{})

	go forwarder.Run(done)
	defer close(done)

	forwarder.Arm(cmd.Process.Pid)

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("signal self: %v", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		if err != nil {
			t.Fatalf("child exited with error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("child did not exit after the forwarded SIGTERM")
	}

	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("child's TERM trap never ran, forwarding did not reach it: %v", err)
	}
}
