//go:build linux

package adverb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressure-vessel/launcher/internal/preload"
)

// ABIDirs is the temporary directory tree backing the per-architecture
// preload symlink farm: one subdirectory per known
// architecture, each containing symlinks to host-side preload modules, so
// that a single LD_PRELOAD entry using the dynamic linker's $LIB token
// resolves differently per ABI.
type ABIDirs struct {
	Root string
	// LibTemplate is Root with the dynamic linker's own $LIB token
	// appended as a further path component, e.g.
	// "/tmp/pv-adverb-preload-123/$LIB".
	LibTemplate string
}

// CreateABIDirs makes a fresh temporary root containing one subdirectory
// per arch (named by its ABI tuple).
func CreateABIDirs(arches []preload.Arch) (*ABIDirs, error) {
	root, err := os.MkdirTemp("", "pv-adverb-preload-")
	if err != nil {
		return nil, fmt.Errorf("creating preload symlink root: %w", err)
	}

	for _, arch := range arches {
		dir := filepath.Join(root, string(arch))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = os.RemoveAll(root)
			return nil, fmt.Errorf("creating ABI directory for %s: %w", arch, err)
		}
	}

	return &ABIDirs{
		Root:        root,
		LibTemplate: filepath.Join(root, "$LIB"),
	}, nil
}

// Close removes the temporary directory tree.
func (d *ABIDirs) Close() error {
	if d == nil || d.Root == "" {
		return nil
	}

	return os.RemoveAll(d.Root)
}

// Stage creates, for each ABI-qualified entry, a symlink to its Literal
// inside the corresponding per-arch directory and returns the single, consolidated
// LD_PRELOAD literal referencing them via the $LIB token. All entries
// passed in must share the same basename; Stage de-duplicates per arch,
// so two gameoverlayrenderer.so entries from different host ABI
// directories collapse into one templated literal.
func (d *ABIDirs) Stage(entries []preload.Entry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("adverb: no entries to stage")
	}

	basename := filepath.Base(entries[0].Literal)

	for _, e := range entries {
		if e.ABI == "" {
			continue
		}

		dst := filepath.Join(d.Root, string(e.ABI), basename)

		if _, err := os.Lstat(dst); err == nil {
			continue
		}

		if err := os.Symlink(e.Literal, dst); err != nil {
			return "", fmt.Errorf("symlinking %s -> %s: %w", dst, e.Literal, err)
		}
	}

	return filepath.Join(d.LibTemplate, basename), nil
}
