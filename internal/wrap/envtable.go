// The environment-variable export contract: each named variable's value
// is added to the Exports planner (read-only or read-write, optionally
// colon-split) and then propagated into the container's environment, via
// a declarative rule table rather than ad hoc per-variable code.
package wrap

import (
	"strings"

	"github.com/pressure-vessel/launcher/internal/debuglog"
	"github.com/pressure-vessel/launcher/internal/envoverlay"
	"github.com/pressure-vessel/launcher/internal/exports"
)

// EnvExportRule is one row of the environment export table.
type EnvExportRule struct {
	Name         string
	Mode         exports.Mode
	ColonSplit   bool
	Deprecated   bool
	OnlyWhenHome HomeMode // zero value HomeMode("") means "always"
}

// EnvTable is the fixed rule set, in table order.
var EnvTable = []EnvExportRule{
	{Name: "PRESSURE_VESSEL_FILESYSTEMS_RO", Mode: exports.ModeReadOnly, ColonSplit: true},
	{Name: "PRESSURE_VESSEL_FILESYSTEMS_RW", Mode: exports.ModeReadWrite, ColonSplit: true},
	{Name: "PROTON_LOG_DIR", Mode: exports.ModeReadWrite},
	{Name: "STEAM_COMPAT_APP_LIBRARY_PATH", Mode: exports.ModeReadWrite, Deprecated: true},
	{Name: "STEAM_COMPAT_APP_LIBRARY_PATHS", Mode: exports.ModeReadWrite, ColonSplit: true, Deprecated: true},
	{Name: "STEAM_COMPAT_CLIENT_INSTALL_PATH", Mode: exports.ModeReadWrite},
	{Name: "STEAM_COMPAT_DATA_PATH", Mode: exports.ModeReadWrite},
	{Name: "STEAM_COMPAT_INSTALL_PATH", Mode: exports.ModeReadWrite},
	{Name: "STEAM_COMPAT_LIBRARY_PATHS", Mode: exports.ModeReadWrite, ColonSplit: true},
	{Name: "STEAM_COMPAT_MOUNT_PATHS", Mode: exports.ModeReadWrite, ColonSplit: true, Deprecated: true},
	{Name: "STEAM_COMPAT_MOUNTS", Mode: exports.ModeReadWrite, ColonSplit: true},
	{Name: "STEAM_COMPAT_SHADER_PATH", Mode: exports.ModeReadWrite},
	{Name: "STEAM_COMPAT_TOOL_PATH", Mode: exports.ModeReadWrite, Deprecated: true},
	{Name: "STEAM_COMPAT_TOOL_PATHS", Mode: exports.ModeReadWrite, ColonSplit: true},
	{Name: "STEAM_EXTRA_COMPAT_TOOLS_PATHS", Mode: exports.ModeReadWrite, ColonSplit: true},
	{Name: "XDG_CACHE_HOME", Mode: exports.ModeReadWrite, OnlyWhenHome: HomeShared},
	{Name: "XDG_CONFIG_HOME", Mode: exports.ModeReadWrite, OnlyWhenHome: HomeShared},
	{Name: "XDG_DATA_HOME", Mode: exports.ModeReadWrite, OnlyWhenHome: HomeShared},
	{Name: "XDG_STATE_HOME", Mode: exports.ModeReadWrite, OnlyWhenHome: HomeShared},
}

// ApplyEnvTable walks EnvTable against hostEnv, adding each present and
// resolvable path to p, and recording the (possibly unmodified) value in
// overlay for propagation into the container.
func ApplyEnvTable(p *exports.Planner, overlay *envoverlay.Overlay, hostEnv map[string]string, home HomeMode, log *debuglog.Logger) {
	for _, rule := range EnvTable {
		if rule.OnlyWhenHome != "" && rule.OnlyWhenHome != home {
			continue
		}

		value, ok := hostEnv[rule.Name]
		if !ok || value == "" {
			continue
		}

		if rule.Deprecated && log != nil {
			log.Warnf("%s is deprecated", rule.Name)
		}

		paths := []string{value}
		if rule.ColonSplit {
			paths = strings.Split(value, ":")
		}

		for _, path := range paths {
			if path == "" {
				continue
			}

			if err := p.AddExpose(path, rule.Mode, rule.Name); err != nil {
				if log != nil {
					log.Logf("%s: skipping %s: %v", rule.Name, path, err)
				}

				continue
			}
		}

		_ = overlay.Set(rule.Name, value)
	}
}
