// Package wrap implements the outer launcher: it detects the ambient
// sandbox/translator situation, resolves the home-directory mode,
// populates the Exports planner, composes the environment overlay, and
// emits the argv chain container-helper -> pv-adverb -> guest command.
package wrap

import (
	"fmt"

	"github.com/pressure-vessel/launcher/internal/debuglog"
	"github.com/pressure-vessel/launcher/internal/envoverlay"
	"github.com/pressure-vessel/launcher/internal/exports"
	"github.com/pressure-vessel/launcher/internal/pathpolicy"
)

// Options captures the Wrap supervisor's resolved configuration: the
// caller's CLI flags, environment, and launch-config overrides merged
// together, ready to drive PlanAll.
type Options struct {
	HostEnv        map[string]string
	HomeMode       HomeMode
	AppID          string
	CallerHome     string
	WorkDir        string
	ExtraRO        []string
	ExtraRW        []string
	DockerEnabled  bool
	LauncherName   string
	SensitivePaths []string // advisory overrides from launchconfig, appended to pathpolicy's defaults
}

// PlanAll runs the full export-population sequence against a
// fresh planner and returns it along with the composed environment
// overlay, ready for Finalize and HelperArgs respectively.
func PlanAll(opts Options, log *debuglog.Logger) (*exports.Planner, *envoverlay.Overlay, error) {
	root := exports.NewRealRoot()
	p := exports.New(root, log)

	translator := DetectTranslatorRootfs(opts.HostEnv)

	rootPrefix := ""
	if translator.Active() {
		rootPrefix = translator.TranslatorRoot
	}

	if err := PlanHostRuntime(p, rootPrefix); err != nil {
		return nil, nil, fmt.Errorf("planning host runtime: %w", err)
	}

	home := ResolveHome(opts.HomeMode, opts.CallerHome, opts.AppID)
	if home != "" {
		if err := p.AddExpose(home, exports.ModeReadWrite, "home"); err != nil {
			return nil, nil, fmt.Errorf("planning home directory: %w", err)
		}
	}

	PlanIPCSockets(p, DiscoverIPCSockets(opts.HostEnv))

	if err := PlanDockerSocket(p, opts.DockerEnabled, opts.HostEnv); err != nil {
		if log != nil {
			log.Logf("docker socket: %v", err)
		}
	}

	overlay := envoverlay.New()
	ApplyEnvTable(p, overlay, opts.HostEnv, opts.HomeMode, log)

	if opts.WorkDir != "" && opts.WorkDir != home {
		if err := p.AddExpose(opts.WorkDir, exports.ModeReadWrite, "cwd"); err != nil {
			if log != nil {
				log.Logf("cwd: %v", err)
			}
		}
	}

	for _, path := range opts.ExtraRO {
		warnIfSensitive(path, opts.SensitivePaths, log)

		if err := p.AddExpose(path, exports.ModeReadOnly, "--filesystem"); err != nil {
			if log != nil {
				log.Logf("--filesystem %s: %v", path, err)
			}
		}
	}

	for _, path := range opts.ExtraRW {
		warnIfSensitive(path, opts.SensitivePaths, log)

		if err := p.AddExpose(path, exports.ModeReadWrite, "--filesystem"); err != nil {
			if log != nil {
				log.Logf("--filesystem %s: %v", path, err)
			}
		}
	}

	PlanOtherFrameworks(p)

	composeBaseOverlay(overlay, opts.LauncherName)

	return p, overlay, nil
}

// warnIfSensitive implements an advisory guard: it logs a
// warning but never blocks the export.
func warnIfSensitive(path string, extra []string, log *debuglog.Logger) {
	sensitive := pathpolicy.IsSensitive(path)

	for _, pat := range extra {
		if !sensitive && len(path) >= len(pat) && path[len(path)-len(pat):] == pat {
			sensitive = true
		}
	}

	if sensitive && log != nil {
		log.Warnf("exposing a path that looks like a credential store: %s", path)
	}
}

// composeBaseOverlay implements the fixed environment adjustments:
// identify the container, clear PWD, and unset the variables a setuid
// container helper would otherwise filter (re-provided out-of-band by the
// Adverb instead).
func composeBaseOverlay(overlay *envoverlay.Overlay, launcherName string) {
	_ = overlay.Set("container", launcherName)
	_ = overlay.Unset("PWD")

	for _, name := range []string{"LD_LIBRARY_PATH", "LD_PRELOAD", "LD_AUDIT"} {
		_ = overlay.Unset(name)
	}
}
