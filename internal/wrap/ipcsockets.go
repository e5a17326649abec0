// Well-known IPC rendezvous paths: X11, Wayland,
// PulseAudio, PipeWire, D-Bus session/system bus, Discord RPC. Unlike the
// docker socket (4.5.1), none of these is ever masked: each one present on
// the host is bound read-write, and the rest are skipped.
package wrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressure-vessel/launcher/internal/exports"
)

// IPCSocket is one rendezvous resource the Wrap supervisor exposes
// read-write when present on the host.
type IPCSocket struct {
	Name string
	Path string
}

// DiscoverIPCSockets resolves the fixed list of IPC rendezvous paths from
// the caller's environment, skipping anything whose backing environment
// variable is unset.
func DiscoverIPCSockets(env map[string]string) []IPCSocket {
	var out []IPCSocket

	runtimeDir := env["XDG_RUNTIME_DIR"]

	if disp := env["DISPLAY"]; disp != "" && runtimeDir != "" {
		out = append(out, IPCSocket{Name: "x11", Path: "/tmp/.X11-unix"})
	}

	if wl := env["WAYLAND_DISPLAY"]; wl != "" && runtimeDir != "" {
		path := wl
		if !filepath.IsAbs(path) {
			path = filepath.Join(runtimeDir, wl)
		}

		out = append(out, IPCSocket{Name: "wayland", Path: path})
	}

	if pulse := env["PULSE_SERVER"]; pulse != "" {
		out = append(out, IPCSocket{Name: "pulseaudio", Path: pulseSocketPath(pulse, runtimeDir)})
	} else if runtimeDir != "" {
		out = append(out, IPCSocket{Name: "pulseaudio", Path: filepath.Join(runtimeDir, "pulse", "native")})
	}

	if runtimeDir != "" {
		out = append(out, IPCSocket{Name: "pipewire", Path: filepath.Join(runtimeDir, "pipewire-0")})
	}

	if bus := env["DBUS_SESSION_BUS_ADDRESS"]; bus != "" {
		if p, ok := unixSocketPathFromAddress(bus); ok {
			out = append(out, IPCSocket{Name: "dbus-session", Path: p})
		}
	}

	out = append(out, IPCSocket{Name: "dbus-system", Path: "/var/run/dbus/system_bus_socket"})

	if runtimeDir != "" {
		out = append(out, IPCSocket{Name: "discord-ipc-0", Path: filepath.Join(runtimeDir, "discord-ipc-0")})
	}

	return out
}

// PlanIPCSockets adds every present socket to p, read-write, skipping any
// that do not exist on the host (informational, not an error).
func PlanIPCSockets(p *exports.Planner, sockets []IPCSocket) {
	for _, s := range sockets {
		if _, err := os.Lstat(s.Path); err != nil {
			continue
		}

		_ = p.AddExpose(s.Path, exports.ModeReadWrite, fmt.Sprintf("ipc-socket:%s", s.Name))
	}
}

func pulseSocketPath(pulseServer, runtimeDir string) string {
	if rest, ok := strings.CutPrefix(pulseServer, "unix:"); ok {
		return rest
	}

	return filepath.Join(runtimeDir, "pulse", "native")
}

func unixSocketPathFromAddress(addr string) (string, bool) {
	const prefix = "unix:path="

	idx := strings.Index(addr, prefix)
	if idx < 0 {
		return "", false
	}

	rest := addr[idx+len(prefix):]

	if comma := strings.IndexByte(rest, ','); comma >= 0 {
		rest = rest[:comma]
	}

	return rest, true
}
