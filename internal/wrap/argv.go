package wrap

import (
	"github.com/pressure-vessel/launcher/internal/envoverlay"
	"github.com/pressure-vessel/launcher/internal/exports"
)

// BuildHelperArgv emits the final argv chain:
// containerHelperPath followed by the finalized mount ops as bwrap flags,
// then adverbPath and its own flags, then "--" and the guest command.
func BuildHelperArgv(containerHelperPath string, p *exports.Planner, overlay *envoverlay.Overlay, adverbPath string, adverbArgs, guestCmd []string) []string {
	argv := []string{containerHelperPath}

	for _, op := range p.Finalize() {
		argv = append(argv, op.BwrapArgs()...)
	}

	argv = append(argv, overlay.HelperArgs()...)
	argv = append(argv, "--die-with-parent", "--")
	argv = append(argv, adverbPath)
	argv = append(argv, adverbArgs...)
	argv = append(argv, "--")
	argv = append(argv, guestCmd...)

	return argv
}
