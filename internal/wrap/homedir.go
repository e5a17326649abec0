package wrap

import "path/filepath"

// HomeMode selects how the guest's $HOME is populated.
type HomeMode string

const (
	HomeShared    HomeMode = "shared"
	HomePrivate   HomeMode = "private"
	HomeTransient HomeMode = "transient"
)

// ResolveHome returns the guest-visible home directory path for mode,
// given the caller's real $HOME and an application id used for the
// private-home subdirectory name (e.g. "~/.var/app/<id>").
func ResolveHome(mode HomeMode, callerHome, appID string) string {
	switch mode {
	case HomePrivate:
		return filepath.Join(callerHome, ".var", "app", appID)
	case HomeTransient:
		// A transient home has no host-side path; the caller mounts a
		// tmpfs there instead of binding anything.
		return ""
	default:
		return callerHome
	}
}
