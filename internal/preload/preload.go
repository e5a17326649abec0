// Package preload classifies caller-supplied LD_AUDIT/LD_PRELOAD entries
// and dispatches each to the appropriate per-architecture expansion rule.
// The classification sum type is a small closed int enum with a String()
// method rather than an interface hierarchy.
package preload

import (
	"path"
	"strings"
)

// Arch is a known ABI/architecture tuple, e.g. "x86_64-linux-gnu".
type Arch string

// VarKind distinguishes LD_AUDIT from LD_PRELOAD requests; both go through
// the same classifier but are never merged across kinds.
type VarKind int

const (
	VarPreload VarKind = iota
	VarAudit
)

func (k VarKind) String() string {
	if k == VarAudit {
		return "LD_AUDIT"
	}

	return "LD_PRELOAD"
}

// Class is the classifier's closed output set.
type Class int

const (
	ClassInvalid Class = iota
	ClassBasename
	ClassAbsolutePlain
	ClassABIDependent
	ClassDynamicUnknown
)

func (c Class) String() string {
	switch c {
	case ClassBasename:
		return "basename"
	case ClassAbsolutePlain:
		return "absolute-plain"
	case ClassABIDependent:
		return "abi-dependent"
	case ClassDynamicUnknown:
		return "dynamic-unknown"
	default:
		return "invalid"
	}
}

// knownTokens are the dynamic-linker substitution tokens this classifier
// recognizes as ABI_DEPENDENT rather than DYNAMIC_UNKNOWN.
var knownTokens = []string{"LIB", "PLATFORM"}

// Request is a caller-supplied preload entry, as parsed from
// --ld-preload/--ld-audit.
type Request struct {
	Kind VarKind
	// Literal is the entry exactly as given by the caller, e.g.
	// "libMangoHud.so" or "/tmp/overlay/$LIB/gameoverlayrenderer.so".
	Literal string
	// ABI names the architecture this entry is pinned to via an explicit
	// "abi=<tuple>" selector, or "" if unspecified.
	ABI Arch
}

// Classify implements the classification rules.
func Classify(literal string) Class {
	if literal == "" {
		return ClassInvalid
	}

	if strings.ContainsAny(literal, "\x00") {
		return ClassInvalid
	}

	if !strings.Contains(literal, "/") {
		return ClassBasename
	}

	if containsToken(literal, "ORIGIN") || hasUnknownToken(literal) {
		return ClassDynamicUnknown
	}

	if containsToken(literal, "LIB") || containsToken(literal, "PLATFORM") {
		return ClassABIDependent
	}

	if strings.HasPrefix(literal, "/") {
		return ClassAbsolutePlain
	}

	return ClassDynamicUnknown
}

// containsToken reports whether literal references token in either $TOKEN
// or ${TOKEN} form.
func containsToken(literal, token string) bool {
	return strings.Contains(literal, "$"+token) || strings.Contains(literal, "${"+token+"}")
}

// hasUnknownToken reports whether literal contains a "$" token reference
// that is not one of knownTokens (and is not $ORIGIN, checked separately
// by the caller so DYNAMIC_UNKNOWN's two triggers can be told apart in
// tests if ever needed).
func hasUnknownToken(literal string) bool {
	idx := 0
	for {
		at := strings.IndexByte(literal[idx:], '$')
		if at < 0 {
			return false
		}

		at += idx
		rest := literal[at+1:]

		name := extractTokenName(rest)
		if name == "" {
			return true
		}

		if name != "ORIGIN" && !isKnownToken(name) {
			return true
		}

		idx = at + 1
	}
}

func extractTokenName(rest string) string {
	if strings.HasPrefix(rest, "{") {
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return ""
		}

		return rest[1:end]
	}

	end := 0
	for end < len(rest) && isIdentByte(rest[end]) {
		end++
	}

	return rest[:end]
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func isKnownToken(name string) bool {
	for _, t := range knownTokens {
		if t == name {
			return true
		}
	}

	return false
}

// gtk3NocsdBasename is dropped unconditionally: it is known to crash under
// the container.
const gtk3NocsdBasename = "gtk3-nocsd"

// gameoverlayrendererBasename identifies Steam's overlay injector, which
// gets special multi-ABI consolidation handling by the Adverb.
const gameoverlayrendererBasename = "gameoverlayrenderer.so"

// Dropped describes why a request never reaches dispatch.
type Dropped struct {
	Request Request
	Reason  string
}

// Filter applies the special cases, run before classification:
// gtk3-nocsd is always dropped, and gameoverlayrenderer.so entries are
// dropped when removeOverlay is set. It returns the surviving requests and
// a Dropped record for each one removed.
func Filter(reqs []Request, removeOverlay bool) ([]Request, []Dropped) {
	var kept []Request

	var dropped []Dropped

	for _, r := range reqs {
		base := path.Base(r.Literal)

		if base == gtk3NocsdBasename {
			dropped = append(dropped, Dropped{Request: r, Reason: "known to crash under the container"})
			continue
		}

		if removeOverlay && strings.HasSuffix(base, gameoverlayrendererBasename) {
			dropped = append(dropped, Dropped{Request: r, Reason: "overlay removal requested"})
			continue
		}

		kept = append(kept, r)
	}

	return kept, dropped
}

// IsGameOverlayRenderer reports whether literal's basename is the Steam
// overlay injector, for the Adverb's multi-ABI consolidation step (4.4.4).
func IsGameOverlayRenderer(literal string) bool {
	return path.Base(literal) == gameoverlayrendererBasename
}
