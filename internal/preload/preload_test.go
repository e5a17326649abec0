package preload_test

import (
	"testing"

	"github.com/pressure-vessel/launcher/internal/preload"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		literal string
		want    preload.Class
	}{
		{"libMangoHud.so", preload.ClassBasename},
		{"/usr/lib/libfoo.so", preload.ClassAbsolutePlain},
		{"/usr/$LIB/libfoo.so", preload.ClassABIDependent},
		{"${PLATFORM}/libfoo.so", preload.ClassABIDependent},
		{"/opt/$ORIGIN/libfoo.so", preload.ClassDynamicUnknown},
		{"/opt/$WEIRD/libfoo.so", preload.ClassDynamicUnknown},
		{"", preload.ClassInvalid},
	}

	for _, c := range cases {
		if got := preload.Classify(c.literal); got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.literal, got, c.want)
		}
	}
}

func TestFilterDropsGtk3Nocsd(t *testing.T) {
	reqs := []preload.Request{
		{Kind: preload.VarPreload, Literal: "/usr/lib/gtk3-nocsd"},
		{Kind: preload.VarPreload, Literal: "libMangoHud.so"},
	}

	kept, dropped := preload.Filter(reqs, false)

	if len(kept) != 1 || kept[0].Literal != "libMangoHud.so" {
		t.Fatalf("expected only libMangoHud.so to survive, got %+v", kept)
	}

	if len(dropped) != 1 {
		t.Fatalf("expected one dropped entry, got %+v", dropped)
	}
}

func TestFilterDropsOverlayWhenRemoved(t *testing.T) {
	reqs := []preload.Request{
		{Kind: preload.VarPreload, Literal: "/tmp/x86/gameoverlayrenderer.so"},
	}

	kept, dropped := preload.Filter(reqs, true)

	if len(kept) != 0 || len(dropped) != 1 {
		t.Fatalf("expected overlay entry dropped, got kept=%+v dropped=%+v", kept, dropped)
	}
}

type fakeRuntime struct {
	hasLibrary  map[string]bool
	resolveBase map[string]string
	arches      []preload.Arch
	prefixes    map[string]string
}

func (f *fakeRuntime) HasLibrary(arch preload.Arch, basename string) bool {
	return f.hasLibrary[string(arch)+"/"+basename]
}

func (f *fakeRuntime) ResolveBasename(arch preload.Arch, basename string) (string, bool) {
	v, ok := f.resolveBase[string(arch)+"/"+basename]
	return v, ok
}

func (f *fakeRuntime) ResolveLiteral(arch preload.Arch, literal string) (string, bool) {
	return preload.ExpandABIToken(literal, arch, f), true
}

func (f *fakeRuntime) Architectures() []preload.Arch { return f.arches }

func (f *fakeRuntime) LibToken(arch preload.Arch) string {
	return "lib/" + string(arch)
}

func (f *fakeRuntime) PlatformToken(arch preload.Arch) string {
	return string(arch)
}

func (f *fakeRuntime) ContainerPrefix(hostPath string) (string, bool) {
	v, ok := f.prefixes[hostPath]
	return v, ok
}

func TestDispatchBasenameSplitsPerArch(t *testing.T) {
	rt := &fakeRuntime{
		arches: []preload.Arch{"x86_64-linux-gnu", "i386-linux-gnu"},
		resolveBase: map[string]string{
			"x86_64-linux-gnu/libMangoHud.so": "/host/lib/x86_64-linux-gnu/libMangoHud.so",
			"i386-linux-gnu/libMangoHud.so":   "/host/lib/i386-linux-gnu/libMangoHud.so",
		},
	}

	entries, exports, dropped := preload.Dispatch(preload.Request{Kind: preload.VarPreload, Literal: "libMangoHud.so"}, rt)
	if dropped != nil {
		t.Fatalf("unexpected drop: %v", dropped)
	}

	if len(exports) != 0 {
		t.Fatalf("basename dispatch should not require exports, got %+v", exports)
	}

	if len(entries) != 2 {
		t.Fatalf("expected one entry per architecture, got %+v", entries)
	}
}

func TestDispatchBasenamePassesThroughWhenRuntimeHasIt(t *testing.T) {
	rt := &fakeRuntime{
		arches:     []preload.Arch{"x86_64-linux-gnu"},
		hasLibrary: map[string]bool{"x86_64-linux-gnu/libfoo.so": true},
	}

	entries, _, dropped := preload.Dispatch(preload.Request{Kind: preload.VarPreload, Literal: "libfoo.so"}, rt)
	if dropped != nil {
		t.Fatalf("unexpected drop: %v", dropped)
	}

	if len(entries) != 1 || entries[0].Literal != "libfoo.so" {
		t.Fatalf("expected passthrough of libfoo.so, got %+v", entries)
	}
}

func TestDispatchAbsolutePlainRewritesPrefixAndExports(t *testing.T) {
	rt := &fakeRuntime{
		arches:   []preload.Arch{"x86_64-linux-gnu"},
		prefixes: map[string]string{"/usr/lib/libfoo.so": "/run/host/usr/lib/libfoo.so"},
	}

	entries, exports, dropped := preload.Dispatch(preload.Request{Kind: preload.VarPreload, Literal: "/usr/lib/libfoo.so"}, rt)
	if dropped != nil {
		t.Fatalf("unexpected drop: %v", dropped)
	}

	if len(entries) != 1 || entries[0].Literal != "/run/host/usr/lib/libfoo.so" {
		t.Fatalf("expected rewritten prefix, got %+v", entries)
	}

	if len(exports) != 1 || exports[0].Path != "/run/host/usr/lib" {
		t.Fatalf("expected export of the containing directory, got %+v", exports)
	}
}

func TestDispatchDynamicUnknownExposesAncestor(t *testing.T) {
	rt := &fakeRuntime{arches: []preload.Arch{"x86_64-linux-gnu"}}

	entries, exports, dropped := preload.Dispatch(
		preload.Request{Kind: preload.VarPreload, Literal: "/opt/overlay/$ORIGIN/libfoo.so"}, rt)
	if dropped != nil {
		t.Fatalf("unexpected drop: %v", dropped)
	}

	if len(entries) != 1 || entries[0].Literal != "/opt/overlay/$ORIGIN/libfoo.so" {
		t.Fatalf("expected literal passed through unchanged, got %+v", entries)
	}

	if len(exports) != 1 || exports[0].Path != "/opt/overlay" {
		t.Fatalf("expected ancestor export, got %+v", exports)
	}
}

func TestDispatchInvalidIsDropped(t *testing.T) {
	rt := &fakeRuntime{}

	entries, exports, dropped := preload.Dispatch(preload.Request{Kind: preload.VarPreload, Literal: ""}, rt)
	if dropped == nil {
		t.Fatal("expected a Dropped record for an empty literal")
	}

	if entries != nil || exports != nil {
		t.Fatalf("expected no entries/exports for an invalid literal, got %+v %+v", entries, exports)
	}
}
