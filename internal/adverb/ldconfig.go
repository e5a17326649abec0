//go:build linux

package adverb

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RegenerateCache runs ldconfig against a combined ld.so.conf (the
// caller-supplied extraConfEntries prepended to the runtime's own conf)
// and atomically replaces the previous cache on success. On failure it leaves the previous cache untouched and returns an
// error the caller should treat as advisory (launcherr.KindLdconfigFailed),
// not fatal.
func RegenerateCache(ctx context.Context, outputDir, runtimeConfPath string, extraConfEntries []string, verbose bool) (newLibraryPath string, err error) {
	for _, e := range extraConfEntries {
		if !strings.HasPrefix(e, "/") {
			return "", fmt.Errorf("ld.so.conf entry %q must be an absolute path", e)
		}

		if strings.ContainsAny(e, "\n\t") {
			return "", fmt.Errorf("ld.so.conf entry %q must not contain newline or tab", e)
		}
	}

	combinedConf := filepath.Join(outputDir, "ld.so.conf")

	runtimeConf, err := os.ReadFile(runtimeConfPath)
	if err != nil {
		return "", fmt.Errorf("reading runtime ld.so.conf: %w", err)
	}

	var combined strings.Builder
	for _, e := range extraConfEntries {
		combined.WriteString(e)
		combined.WriteByte('\n')
	}

	combined.Write(runtimeConf)

	if err := os.WriteFile(combinedConf, []byte(combined.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing combined ld.so.conf: %w", err)
	}

	newCache := filepath.Join(outputDir, "ld.so.cache.new")
	finalCache := filepath.Join(outputDir, "ld.so.cache")

	args := []string{"-f", combinedConf, "-C", newCache, "-X"}
	if verbose {
		args = append(args, "-v")
	}

	cmd := exec.CommandContext(ctx, "/sbin/ldconfig", args...)

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ldconfig: %w", err)
	}

	if err := os.Rename(newCache, finalCache); err != nil {
		return "", fmt.Errorf("installing new ld.so.cache: %w", err)
	}

	return filepath.Join(outputDir, "lib"), nil
}
