// Mounting the host's merged-/usr tree and /etc, plus the fixed list of "other framework"
// directories exposed read-only as a convenience (last bullet).
package wrap

import (
	"fmt"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/pressure-vessel/launcher/internal/exports"
)

// rootedPath joins rel onto rootPrefix. When rootPrefix is set (a
// translator/overlay rootfs, sourced from an environment variable rather
// than a fixed constant) the join is symlink-aware and cannot escape
// rootPrefix, since rel is caller-fixed but rootPrefix is not something
// this package controls the contents of.
func rootedPath(rootPrefix, rel string) (string, error) {
	if rootPrefix == "" {
		return rel, nil
	}

	return securejoin.SecureJoin(rootPrefix, rel)
}

// mergedUsrSymlinks are the top-level directories a merged-/usr host
// implements as symlinks into /usr; each is recreated at its container
// prefix alongside the /usr bind itself.
var mergedUsrSymlinks = []string{"/bin", "/sbin", "/lib", "/lib32", "/lib64"}

// otherFrameworkDirs are exposed read-only as a convenience if present.
var otherFrameworkDirs = []string{"/nix", "/snap"}

// hostRuntimeRoot is the container-owned location the host's merged-/usr
// runtime is exposed at, distinct from the container runtime's own /usr.
const hostRuntimeRoot = "/run/host"

// PlanHostRuntime adds /usr (and its merged-/usr symlinks), /etc, and the
// os-release file to p, read from rootPrefix ("" for the real root, or a
// translator's rootfs path) and bound at their /run/host/... container
// targets rather than at their host-side paths, since the container
// runtime owns /usr and /etc itself.
func PlanHostRuntime(p *exports.Planner, rootPrefix string) error {
	usr, err := rootedPath(rootPrefix, "/usr")
	if err != nil {
		return fmt.Errorf("resolving /usr under translator rootfs: %w", err)
	}

	if err := p.AddHostRuntimeBind(usr, hostRuntimeRoot+"/usr", exports.ModeReadOnly, "host-usr"); err != nil {
		return err
	}

	for _, link := range mergedUsrSymlinks {
		path, err := rootedPath(rootPrefix, link)
		if err != nil {
			continue
		}

		if _, err := os.Lstat(path); err != nil {
			continue
		}

		_ = p.AddHostRuntimeBind(path, hostRuntimeRoot+link, exports.ModeReadOnly, "host-usr-merge")
	}

	etc, err := rootedPath(rootPrefix, "/etc")
	if err != nil {
		return fmt.Errorf("resolving /etc under translator rootfs: %w", err)
	}

	if err := p.AddHostRuntimeBind(etc, hostRuntimeRoot+"/etc", exports.ModeReadOnly, "host-etc"); err != nil {
		return err
	}

	osRelease, err := rootedPath(rootPrefix, "/etc/os-release")
	if err != nil {
		return nil
	}

	if _, statErr := os.Lstat(osRelease); statErr != nil {
		osRelease, err = rootedPath(rootPrefix, "/usr/lib/os-release")
		if err != nil {
			return nil
		}
	}

	if _, statErr := os.Lstat(osRelease); statErr == nil {
		_ = p.AddHostRuntimeBind(osRelease, hostRuntimeRoot+"/os-release", exports.ModeReadOnly, "os-release")
	}

	return nil
}

// PlanOtherFrameworks adds the read-only convenience directories that are
// present on the host.
func PlanOtherFrameworks(p *exports.Planner) {
	for _, dir := range otherFrameworkDirs {
		if _, err := os.Lstat(dir); err != nil {
			continue
		}

		_ = p.AddExpose(dir, exports.ModeReadOnly, "other-framework")
	}
}
