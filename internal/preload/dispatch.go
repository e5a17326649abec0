package preload

import (
	"fmt"
	"strings"
)

// RuntimeProvider is the runtime-provisioning collaborator the classifier
// dispatch rules consult: it knows what the
// already-assembled runtime ships, and how to resolve a library name or
// token-qualified path against a given architecture's search path.
type RuntimeProvider interface {
	// HasLibrary reports whether the runtime already ships a library with
	// this basename for arch.
	HasLibrary(arch Arch, basename string) bool

	// ResolveBasename resolves basename against the host library search
	// path for arch, returning the absolute path if found.
	ResolveBasename(arch Arch, basename string) (string, bool)

	// ResolveLiteral resolves a literal containing $LIB/$PLATFORM tokens
	// by substituting arch's values and checking existence, returning the
	// resolved absolute path if found.
	ResolveLiteral(arch Arch, literal string) (string, bool)

	// Architectures returns the known architectures, in the fixed order
	// used for deterministic expansion.
	Architectures() []Arch

	// LibToken and PlatformToken return the dynamic linker's substitution
	// text for $LIB / $PLATFORM under arch, e.g. "lib/x86_64-linux-gnu".
	LibToken(arch Arch) string
	PlatformToken(arch Arch) string

	// ContainerPrefix maps a host mount prefix ("/usr", "/lib", "/lib64",
	// "/app") to its in-container location ("/run/host/usr",
	// "/run/parent/app", ...), returning ok=false if the path is not under
	// a remounted prefix.
	ContainerPrefix(hostPath string) (containerPath string, ok bool)
}

// Entry is one resolved in-container preload entry, ready for the Adverb's
// per-ABI symlink-directory step or for direct passthrough.
type Entry struct {
	Kind VarKind
	// Literal is the in-container LD_AUDIT/LD_PRELOAD text.
	Literal string
	// ABI is set when this entry only applies on one architecture
	// (produced by 4.3a/4.3b splitting); empty means "applies to the
	// dynamic linker's own per-ABI expansion" (4.3c/4.3d passthrough, or
	// an ABI-token literal consumed later by the Adverb).
	ABI Arch
}

// Export is a path the Exports planner must expose for an Entry to be
// reachable inside the container.
type Export struct {
	Path string
}

// Dispatch classifies and dispatches req, returning the in-container
// entries and any exports they require. A request that classifies as
// INVALID produces no entries and a Dropped record instead.
func Dispatch(req Request, rt RuntimeProvider) ([]Entry, []Export, *Dropped) {
	class := Classify(req.Literal)

	switch class {
	case ClassInvalid:
		return nil, nil, &Dropped{Request: req, Reason: "empty or malformed preload entry"}
	case ClassBasename:
		return dispatchBasename(req, rt), nil, nil
	case ClassABIDependent:
		return dispatchABIDependent(req, rt), nil, nil
	case ClassAbsolutePlain:
		return dispatchAbsolutePlain(req, rt)
	case ClassDynamicUnknown:
		return dispatchDynamicUnknown(req, rt)
	default:
		return nil, nil, &Dropped{Request: req, Reason: "unrecognized classification"}
	}
}

// dispatchBasename implements 4.3a.
func dispatchBasename(req Request, rt RuntimeProvider) []Entry {
	var entries []Entry

	for _, arch := range archesFor(req, rt) {
		if rt.HasLibrary(arch, req.Literal) {
			// The runtime's own copy is ABI-compatible with the rest of
			// the runtime; pass through unchanged, once, not per-arch.
			return []Entry{{Kind: req.Kind, Literal: req.Literal}}
		}

		if resolved, ok := rt.ResolveBasename(arch, req.Literal); ok {
			entries = append(entries, Entry{Kind: req.Kind, Literal: resolved, ABI: arch})
		}
	}

	return entries
}

// dispatchABIDependent implements 4.3b.
func dispatchABIDependent(req Request, rt RuntimeProvider) []Entry {
	var entries []Entry

	for _, arch := range archesFor(req, rt) {
		if resolved, ok := rt.ResolveLiteral(arch, req.Literal); ok {
			entries = append(entries, Entry{Kind: req.Kind, Literal: resolved, ABI: arch})
		}
	}

	return entries
}

// dispatchAbsolutePlain implements 4.3c.
func dispatchAbsolutePlain(req Request, rt RuntimeProvider) ([]Entry, []Export, *Dropped) {
	literal := req.Literal

	if prefixed, ok := rt.ContainerPrefix(literal); ok {
		literal = prefixed
	}

	return []Entry{{Kind: req.Kind, Literal: literal}},
		[]Export{{Path: literal[:strings.LastIndex(literal, "/")]}},
		nil
}

// dispatchDynamicUnknown implements 4.3d.
func dispatchDynamicUnknown(req Request, _ RuntimeProvider) ([]Entry, []Export, *Dropped) {
	entry := Entry{Kind: req.Kind, Literal: req.Literal}

	if !strings.HasPrefix(req.Literal, "/") {
		return []Entry{entry}, nil, nil
	}

	dollar := strings.IndexByte(req.Literal, '$')
	if dollar < 0 {
		return []Entry{entry}, nil, nil
	}

	ancestor := req.Literal[:dollar]

	slash := strings.LastIndexByte(ancestor, '/')
	if slash <= 0 {
		return []Entry{entry}, nil, nil
	}

	ancestor = ancestor[:slash]

	return []Entry{entry}, []Export{{Path: ancestor}}, nil
}

func archesFor(req Request, rt RuntimeProvider) []Arch {
	if req.ABI != "" {
		return []Arch{req.ABI}
	}

	return rt.Architectures()
}

// ExpandABIToken renders literal's $LIB/$PLATFORM tokens against arch using
// rt's token tables, for the Adverb's final argv construction.
func ExpandABIToken(literal string, arch Arch, rt RuntimeProvider) string {
	out := literal
	out = replaceToken(out, "LIB", rt.LibToken(arch))
	out = replaceToken(out, "PLATFORM", rt.PlatformToken(arch))

	return out
}

func replaceToken(s, name, value string) string {
	s = strings.ReplaceAll(s, "${"+name+"}", value)
	s = strings.ReplaceAll(s, "$"+name, value)

	return s
}

// String implements fmt.Stringer for Dropped so callers can log it
// directly.
func (d Dropped) String() string {
	return fmt.Sprintf("%s %s: dropped (%s)", d.Request.Kind, d.Request.Literal, d.Reason)
}
