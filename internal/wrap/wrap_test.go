package wrap_test

import (
	"testing"

	"github.com/pressure-vessel/launcher/internal/exports"
	"github.com/pressure-vessel/launcher/internal/exports/testfs"
	"github.com/pressure-vessel/launcher/internal/wrap"
)

func TestResolveHomeModes(t *testing.T) {
	if got := wrap.ResolveHome(wrap.HomeShared, "/home/alice", "com.example.App"); got != "/home/alice" {
		t.Errorf("shared home = %q, want /home/alice", got)
	}

	if got := wrap.ResolveHome(wrap.HomePrivate, "/home/alice", "com.example.App"); got != "/home/alice/.var/app/com.example.App" {
		t.Errorf("private home = %q, want /home/alice/.var/app/com.example.App", got)
	}

	if got := wrap.ResolveHome(wrap.HomeTransient, "/home/alice", "com.example.App"); got != "" {
		t.Errorf("transient home = %q, want empty (tmpfs, no host path)", got)
	}
}

func TestIsInsideFlatpakFalseOutsideSandbox(t *testing.T) {
	// This test process is not itself running inside Flatpak.
	if wrap.IsInsideFlatpak() {
		t.Skip("test process unexpectedly appears to be inside a Flatpak sandbox")
	}
}

func TestDetectTranslatorRootfsAbsentByDefault(t *testing.T) {
	got := wrap.DetectTranslatorRootfs(map[string]string{})
	if got.Active() {
		t.Errorf("expected no translator rootfs detected from an empty environment, got %+v", got)
	}
}

// PlanHostRuntime must bind the host's /usr and /etc at their /run/host/...
// container targets, not onto the container's own /usr and /etc -- those
// stay reserved for every other caller, including AddExpose itself.
func TestPlanHostRuntimeBindsUnderRunHostWithoutTouchingReservedUsr(t *testing.T) {
	root := testfs.New().Dir("/usr").Dir("/etc")

	p := exports.New(root, nil)

	if err := wrap.PlanHostRuntime(p, ""); err != nil {
		t.Fatalf("PlanHostRuntime: %v", err)
	}

	if got := p.IsVisible("/run/host/usr"); got != exports.VisibleReadOnly {
		t.Errorf("IsVisible(/run/host/usr) = %v, want VisibleReadOnly", got)
	}

	if got := p.IsVisible("/run/host/etc"); got != exports.VisibleReadOnly {
		t.Errorf("IsVisible(/run/host/etc) = %v, want VisibleReadOnly", got)
	}

	// The bug this guards against: PlanHostRuntime used to call
	// AddExpose("/usr", ...), which the reserved-path check rejects
	// unconditionally, failing pv-wrap on every normal invocation.
	if got := p.IsVisible("/usr"); got != exports.Hidden {
		t.Errorf("IsVisible(/usr) = %v, want Hidden -- /usr itself must stay reserved", got)
	}
}
