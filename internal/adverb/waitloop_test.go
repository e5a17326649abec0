//go:build linux

package adverb_test

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/pressure-vessel/launcher/internal/adverb"
)

// Run must keep reaping until every descendant is gone (ECHILD), not just
// until the primary child's own pid has been reaped once.
func TestRunWaitsForSecondChildAfterPrimaryExits(t *testing.T) {
	shPath, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}

	stdio := []*os.File{os.Stdin, os.Stdout, os.Stderr}

	primary, err := os.StartProcess(shPath, []string{"sh", "-c", "exit 3"}, &os.ProcAttr{Files: stdio})
	if err != nil {
		t.Fatalf("start primary: %v", err)
	}

	if _, err := os.StartProcess(shPath, []string{"sh", "-c", "sleep 0.2"}, &os.ProcAttr{Files: stdio}); err != nil {
		t.Fatalf("start secondary: %v", err)
	}

	start := time.Now()

	outcome := adverb.Run(adverb.WaitLoopConfig{PrimaryPID: primary.Pid})

	elapsed := time.Since(start)

	if outcome.ExitCode() != 3 {
		t.Fatalf("ExitCode() = %d, want 3", outcome.ExitCode())
	}

	if elapsed < 150*time.Millisecond {
		t.Fatalf("Run returned after %v, before the second child (200ms sleep) could have exited", elapsed)
	}
}
