//go:build linux

package adverb_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/pressure-vessel/launcher/internal/adverb"
)

// End-to-end coverage of Supervise against a real guest process: these
// drive an actual execve, not just the in-process plan-building helpers,
// so they catch regressions that only show up in the already-spawned
// child's own fd table, signal disposition, or process tree.

func TestSuperviseCarriesLockFDIntoGuestProcess(t *testing.T) {
	shPath, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}

	dir := t.TempDir()
	lockPath := filepath.Join(dir, "lock")
	marker := filepath.Join(dir, "saw-lock-fd")

	if err := os.WriteFile(lockPath, nil, 0o644); err != nil {
		t.Fatalf("seed lock file: %v", err)
	}

	script := fmt.Sprintf(`
for fd in /proc/self/fd/*; do
  target=$(readlink "$fd" 2>/dev/null) || continue
  if [ "$target" = "%s" ]; then
    touch "%s"
  fi
done
`, lockPath, marker)

	opts := adverb.Options{
		Argv: []string{shPath, "-c", script},
		Env:  map[string]string{"PATH": os.Getenv("PATH")},
		Locks: []adverb.LockRequest{
			{Path: lockPath, Exclusive: true},
		},
	}

	result := adverb.Supervise(context.Background(), nil, opts)
	if result.ExitCode != 0 {
		t.Fatalf("Supervise exit code = %d, want 0", result.ExitCode)
	}

	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("guest never observed an open fd pointing at the lock file: %v", err)
	}
}

func TestSuperviseForwardsSignalToGuest(t *testing.T) {
	shPath, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}

	dir := t.TempDir()
	marker := filepath.Join(dir, "got-term")

	script := "trap 'touch " + marker + "; exit 0' TERM; while :; do sleep 0.05; done"

	opts := adverb.Options{
		Argv: []string{shPath, "-c", script},
		Env:  map[string]string{"PATH": os.Getenv("PATH")},
	}

	done := make(chan adverb.Result, 1)
	go func() { done <- adverb.Supervise(context.Background(), nil, opts) }()

	time.Sleep(150 * time.Millisecond)

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("signal self: %v", err)
	}

	select {
	case result := <-done:
		if result.ExitCode != 0 {
			t.Fatalf("Supervise exit code = %d, want 0", result.ExitCode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Supervise did not return after the forwarded SIGTERM")
	}

	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("guest never received the forwarded SIGTERM: %v", err)
	}
}

func TestSuperviseWaitsForSubreapedDescendant(t *testing.T) {
	shPath, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}

	dir := t.TempDir()
	marker := filepath.Join(dir, "grandchild-done")

	script := fmt.Sprintf("( sleep 0.3; touch %s ) & exit 0", marker)

	opts := adverb.Options{
		Argv:      []string{shPath, "-c", script},
		Env:       map[string]string{"PATH": os.Getenv("PATH")},
		Subreaper: true,
	}

	start := time.Now()
	result := adverb.Supervise(context.Background(), nil, opts)
	elapsed := time.Since(start)

	if result.ExitCode != 0 {
		t.Fatalf("Supervise exit code = %d, want 0", result.ExitCode)
	}

	if elapsed < 250*time.Millisecond {
		t.Fatalf("Supervise returned after %v, before the reparented grandchild (300ms sleep) could have exited", elapsed)
	}

	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("grandchild marker file missing, Supervise did not wait for the reparented descendant: %v", err)
	}
}
