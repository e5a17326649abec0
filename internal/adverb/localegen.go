//go:build linux

package adverb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// localeGenNonFatalStatus is the exit status meaning "missing locales were
// corrected"; anything else non-zero is a warning,
// not fatal.
const localeGenNonFatalStatus = 72

// GenerateLocales runs the locale-generation helper, directing its output
// into a fresh temporary directory. It returns the directory to set
// LOCPATH to and whether anything was actually generated; a non-nil error
// here is always advisory (launcherr.KindLocaleGenFailed), never fatal.
func GenerateLocales(ctx context.Context, helperPath string) (locpath string, generated bool, err error) {
	dir, err := os.MkdirTemp("", "pv-adverb-locales-")
	if err != nil {
		return "", false, fmt.Errorf("creating locale output directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, helperPath, "--prefix", dir)

	runErr := cmd.Run()
	if runErr == nil {
		// All locales already present; nothing generated, LOCPATH unused.
		_ = os.RemoveAll(dir)
		return "", false, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		if exitErr.ExitCode() == localeGenNonFatalStatus {
			return dir, true, nil
		}

		_ = os.RemoveAll(dir)
		return "", false, fmt.Errorf("locale-gen exited %d: %w", exitErr.ExitCode(), runErr)
	}

	_ = os.RemoveAll(dir)
	return "", false, fmt.Errorf("running locale-gen: %w", runErr)
}
