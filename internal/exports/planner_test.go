package exports_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pressure-vessel/launcher/internal/exports"
	"github.com/pressure-vessel/launcher/internal/exports/testfs"
)

func TestAddExposeFollowsSymlinkedAncestor(t *testing.T) {
	root := testfs.New().
		Symlink("/home", "var/home").
		Dir("/var").
		Dir("/var/home").
		Dir("/var/home/alice").
		Dir("/var/home/alice/game")

	p := exports.New(root, nil)

	if err := p.AddExpose("/home/alice/game", exports.ModeReadWrite, "test"); err != nil {
		t.Fatalf("AddExpose: %v", err)
	}

	got := p.Finalize()
	want := []exports.Op{
		{Kind: exports.OpSymlink, Target: "/home", SymlinkRelTarget: "var/home"},
		{Kind: exports.OpBindRW, Source: "/var/home/alice/game", Target: "/var/home/alice/game"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Finalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestAddExposeRejectsReservedPath(t *testing.T) {
	root := testfs.New().Dir("/usr").Dir("/usr/lib")

	p := exports.New(root, nil)

	err := p.AddExpose("/usr/lib", exports.ModeReadOnly, "test")
	if err == nil {
		t.Fatal("expected error exposing reserved path /usr/lib")
	}
}

func TestAddExposeRejectsPathUnderReservedAfterResolution(t *testing.T) {
	// /opt -> usr, and exposing /opt/lib should resolve onto a reserved
	// prefix (/usr/lib) and be rejected even though /opt itself is not
	// reserved.
	root := testfs.New().
		Symlink("/opt", "usr")

	p := exports.New(root, nil)

	err := p.AddExpose("/opt/lib", exports.ModeReadOnly, "test")
	if err == nil {
		t.Fatal("expected error: /opt/lib resolves under reserved /usr")
	}
}

func TestAddExposeMissingPathIsAdvisory(t *testing.T) {
	root := testfs.New()

	p := exports.New(root, nil)

	err := p.AddExpose("/home/alice/does-not-exist", exports.ModeReadOnly, "test")
	if err == nil {
		t.Fatal("expected PATH_NOT_FOUND error")
	}

	if len(p.Finalize()) != 0 {
		t.Error("expected no ops recorded for a missing path")
	}
}

func TestAddExposeAutofsBlockedIsAdvisory(t *testing.T) {
	root := testfs.New().
		Dir("/mnt/net").
		Autofs("/mnt/net").
		FailProbe("/mnt/net")

	p := exports.New(root, nil)

	err := p.AddExpose("/mnt/net", exports.ModeReadOnly, "test")
	if err == nil {
		t.Fatal("expected AUTOFS_BLOCKED error")
	}

	if len(p.Finalize()) != 0 {
		t.Error("expected no ops recorded for an autofs-blocked path")
	}
}

func TestAddExposeAutofsProbeSucceeds(t *testing.T) {
	root := testfs.New().
		Dir("/mnt/net").
		Autofs("/mnt/net")

	p := exports.New(root, nil)

	if err := p.AddExpose("/mnt/net", exports.ModeReadOnly, "test"); err != nil {
		t.Fatalf("AddExpose: %v", err)
	}

	if len(p.Finalize()) != 1 {
		t.Fatal("expected one op for a successfully probed autofs path")
	}
}

func TestPromotionKeepsHighestMode(t *testing.T) {
	root := testfs.New().Dir("/srv/data")

	p := exports.New(root, nil)

	if err := p.AddExpose("/srv/data", exports.ModeReadOnly, "a"); err != nil {
		t.Fatal(err)
	}

	if err := p.AddExpose("/srv/data", exports.ModeReadWrite, "b"); err != nil {
		t.Fatal(err)
	}

	got := p.Finalize()
	if len(got) != 1 || got[0].Kind != exports.OpBindRW {
		t.Fatalf("expected a single read-write bind, got %+v", got)
	}

	// Reverse order must not downgrade the promoted mode.
	p2 := exports.New(root, nil)
	_ = p2.AddExpose("/srv/data", exports.ModeReadWrite, "b")
	_ = p2.AddExpose("/srv/data", exports.ModeReadOnly, "a")

	got2 := p2.Finalize()
	if len(got2) != 1 || got2[0].Kind != exports.OpBindRW {
		t.Fatalf("expected read-write to survive regardless of call order, got %+v", got2)
	}
}

func TestFinalizeIsOrderIndependent(t *testing.T) {
	root := testfs.New().
		Dir("/a").Dir("/b").Dir("/c")

	build := func(order []string) []exports.Op {
		p := exports.New(root, nil)
		for _, path := range order {
			_ = p.AddExpose(path, exports.ModeReadOnly, "test")
		}

		return p.Finalize()
	}

	first := build([]string{"/a", "/b", "/c"})
	second := build([]string{"/c", "/a", "/b"})

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Finalize() is not permutation-invariant (-first +second):\n%s", diff)
	}
}

func TestIsVisibleEnsureDirIsTransparent(t *testing.T) {
	root := testfs.New().Dir("/run").Dir("/run/user").Dir("/run/user/1000")

	p := exports.New(root, nil)
	_ = p.AddDir("/run", "test")
	_ = p.AddDir("/run/user", "test")

	if got := p.IsVisible("/run/user/1000"); got != exports.Hidden {
		t.Errorf("IsVisible() = %v, want Hidden (ENSURE_DIR entries are transparent)", got)
	}
}

func TestIsVisibleTmpfsMasksSubtree(t *testing.T) {
	root := testfs.New().Dir("/tmp").Dir("/tmp/secret")

	p := exports.New(root, nil)
	_ = p.AddTmpfs("/tmp", "test")

	if got := p.IsVisible("/tmp/secret"); got != exports.Hidden {
		t.Errorf("IsVisible() = %v, want Hidden under a tmpfs mask", got)
	}
}

func TestIsVisibleBindMakesSubtreeVisible(t *testing.T) {
	root := testfs.New().Dir("/srv").Dir("/srv/data")

	p := exports.New(root, nil)
	_ = p.AddExpose("/srv", exports.ModeReadOnly, "test")

	if got := p.IsVisible("/srv/data"); got != exports.VisibleReadOnly {
		t.Errorf("IsVisible() = %v, want VisibleReadOnly under a read-only bind", got)
	}
}

func TestIsVisibleDefaultsHidden(t *testing.T) {
	root := testfs.New()

	p := exports.New(root, nil)

	if got := p.IsVisible("/never/mentioned"); got != exports.Hidden {
		t.Errorf("IsVisible() = %v, want Hidden by default", got)
	}
}

// AddHostRuntimeBind is the one caller allowed to populate the reserved
// /run/host prefix directly, and the only entry point that lets a bind's
// host source diverge from its container target. /usr itself stays
// reserved for every other caller.
func TestAddHostRuntimeBindAllowsReservedSourceUnderRunHost(t *testing.T) {
	root := testfs.New().Dir("/usr").Dir("/usr/lib")

	p := exports.New(root, nil)

	if err := p.AddHostRuntimeBind("/usr", "/run/host/usr", exports.ModeReadOnly, "host-usr"); err != nil {
		t.Fatalf("AddHostRuntimeBind: %v", err)
	}

	got := p.Finalize()
	want := []exports.Op{
		{Kind: exports.OpBindRO, Source: "/usr", Target: "/run/host/usr"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Finalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestAddHostRuntimeBindRejectsTargetOutsideRunHost(t *testing.T) {
	root := testfs.New().Dir("/usr")

	p := exports.New(root, nil)

	err := p.AddHostRuntimeBind("/usr", "/usr", exports.ModeReadOnly, "host-usr")
	if err == nil {
		t.Fatal("expected an error binding outside /run/host")
	}
}

func TestAddHostRuntimeBindDoesNotCollideWithReservedUsr(t *testing.T) {
	// The bug this guards against: PlanHostRuntime must never fall back to
	// AddExpose("/usr", ...), since the planner's own reserved-path check
	// rejects /usr unconditionally.
	root := testfs.New().Dir("/usr")

	p := exports.New(root, nil)

	if err := p.AddExpose("/usr", exports.ModeReadOnly, "test"); err == nil {
		t.Fatal("expected AddExpose(\"/usr\", ...) to be rejected as reserved")
	}

	if err := p.AddHostRuntimeBind("/usr", "/run/host/usr", exports.ModeReadOnly, "host-usr"); err != nil {
		t.Fatalf("AddHostRuntimeBind: %v", err)
	}
}
