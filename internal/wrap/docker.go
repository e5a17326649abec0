// Docker/auxiliary socket passthrough, adapted directly from sandbox/docker.go's
// dockerSocketMountPlan: resolve the socket's symlinked parent directory
// (many systems have /var/run -> /run) so the exports planner's bind
// target is the real path bwrap will accept, then either mask it with
// /dev/null or bind it read-write.
package wrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressure-vessel/launcher/internal/exports"
)

const defaultDockerSocket = "/var/run/docker.sock"

// PlanDockerSocket adds the docker-socket export (masked or live) to p.
func PlanDockerSocket(p *exports.Planner, enabled bool, hostEnv map[string]string) error {
	socketPath := dockerSocketPathFromEnv(hostEnv)
	if socketPath == "" {
		socketPath = defaultDockerSocket
	}

	socketPath = filepath.Clean(socketPath)

	dstPath := socketPath
	if resolvedDir, err := filepath.EvalSymlinks(filepath.Dir(socketPath)); err == nil && filepath.IsAbs(resolvedDir) {
		dstPath = filepath.Clean(filepath.Join(resolvedDir, filepath.Base(socketPath)))
	}

	if !enabled {
		return p.AddMask(dstPath, "/dev/null", "docker-mask")
	}

	resolved, err := filepath.EvalSymlinks(socketPath)
	if err != nil {
		return fmt.Errorf("docker socket not found: %s: %w", socketPath, err)
	}

	if _, err := os.Stat(resolved); err != nil {
		return fmt.Errorf("docker socket not found: %s: %w", resolved, err)
	}

	return p.AddExpose(resolved, exports.ModeReadWrite, "DOCKER_HOST")
}

func dockerSocketPathFromEnv(hostEnv map[string]string) string {
	dockerHost := hostEnv["DOCKER_HOST"]
	if dockerHost == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(dockerHost, "unix:///"):
		return dockerHost[len("unix://"):]
	case strings.HasPrefix(dockerHost, "unix:/"):
		return dockerHost[len("unix:"):]
	default:
		return ""
	}
}
