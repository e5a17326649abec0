package wrap

import "os"

// flatpakInfoPath is the canonical marker for "we are running inside a
// Flatpak sandbox".
const flatpakInfoPath = "/.flatpak-info"

// IsInsideFlatpak reports whether this process is itself confined by a
// Flatpak sandbox, in which case the Wrap supervisor must not invoke the
// container helper directly and instead builds an argv for the host
// sandbox manager's subsandbox RPC.
func IsInsideFlatpak() bool {
	_, err := os.Stat(flatpakInfoPath)
	return err == nil
}

// TranslatorRootfs describes a user-mode binary translator presenting an
// overlay rootfs: when non-empty, host paths should
// be resolved against TranslatorRoot rather than "/", while RealRoot
// remains available for anything that must bypass the overlay (e.g. the
// graphics provider).
type TranslatorRootfs struct {
	TranslatorRoot string
	RealRoot       string
}

// Active reports whether a translator rootfs was detected.
func (t TranslatorRootfs) Active() bool {
	return t.TranslatorRoot != ""
}

// DetectTranslatorRootfs looks for the translator's marker environment
// variable, as set by the host process before invoking this binary. A real
// translator integration would probe a well-known mount or socket instead
// of trusting an environment variable outright, but the detection
// surface is intentionally narrow here: this hook exists so a caller can
// wire in an actual probe without changing the rest of the Wrap pipeline.
func DetectTranslatorRootfs(env map[string]string) TranslatorRootfs {
	root := env["PRESSURE_VESSEL_TRANSLATOR_ROOTFS"]
	if root == "" {
		return TranslatorRootfs{}
	}

	return TranslatorRootfs{TranslatorRoot: root, RealRoot: "/"}
}
