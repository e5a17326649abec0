// Package exports implements the Exports planner: it accumulates
// "make this host path visible inside the container at mode M" requests,
// resolves them against a host lookup root (real or mock), rewrites
// symbolic-link ancestors so the container sees the same link structure as
// the host, rejects anything inside a reserved prefix, and emits a
// deterministic, ordered sequence of mount operations.
package exports

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pressure-vessel/launcher/internal/debuglog"
	"github.com/pressure-vessel/launcher/internal/launcherr"
	"github.com/pressure-vessel/launcher/internal/pathpolicy"
)

// Mode is the visibility/operation a path resolves to. The integer values
// encode the promotion partial order:
// TMPFS_MASK < ENSURE_DIR < SYMLINK < READ_ONLY < READ_WRITE.
type Mode int

const (
	ModeTmpfsMask Mode = iota
	ModeEnsureDir
	ModeSymlink
	ModeReadOnly
	ModeReadWrite
)

func (m Mode) String() string {
	switch m {
	case ModeTmpfsMask:
		return "tmpfs-mask"
	case ModeEnsureDir:
		return "ensure-dir"
	case ModeSymlink:
		return "symlink"
	case ModeReadOnly:
		return "read-only"
	case ModeReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// Visibility is the outcome of IsVisible.
type Visibility int

const (
	Hidden Visibility = iota
	VisibleReadOnly
	VisibleReadWrite
)

func (v Visibility) String() string {
	switch v {
	case Hidden:
		return "hidden"
	case VisibleReadOnly:
		return "read-only"
	case VisibleReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// entry is the internal record for one canonical path.
type entry struct {
	mode          Mode
	origin        string
	symlinkTarget string // literal host readlink() text, only set when mode == ModeSymlink
	maskSource    string // non-empty for a masking bind (source overridden, e.g. /dev/null)
}

// maxLoopDepth bounds symlink-ancestor recursion so a symlink cycle fails
// loudly instead of hanging.
const maxLoopDepth = 40

// neverSymlinkExposed are paths that are never recorded as a SYMLINK entry
// even if the host happens to implement them as one.
var neverSymlinkExposed = map[string]bool{
	"/tmp":     true,
	"/var/tmp": true,
}

// Planner accumulates export requests and produces a deterministic op
// stream. The zero value is not usable; construct with New.
type Planner struct {
	root           HostRoot
	entries        map[string]*entry
	warnedReserved map[string]bool
	log            *debuglog.Logger
}

// New constructs a Planner resolving paths against root. log may be nil.
func New(root HostRoot, log *debuglog.Logger) *Planner {
	return &Planner{
		root:           root,
		entries:        make(map[string]*entry),
		warnedReserved: make(map[string]bool),
		log:            log,
	}
}

// AddExpose requests that path become visible inside the container at
// mode, which must be ModeReadOnly or ModeReadWrite. origin is a free-form
// diagnostic tag (e.g. an environment variable name or CLI flag).
func (p *Planner) AddExpose(path string, mode Mode, origin string) error {
	if mode != ModeReadOnly && mode != ModeReadWrite {
		return fmt.Errorf("exports: AddExpose mode must be ReadOnly or ReadWrite, got %s", mode)
	}

	return p.add(path, mode, origin)
}

// AddTmpfs requests that path be replaced with an empty writable tmpfs.
func (p *Planner) AddTmpfs(path string, origin string) error {
	return p.add(path, ModeTmpfsMask, origin)
}

// AddDir requests that path exist as a directory, falling through
// transparently to whatever covers its parent for visibility purposes.
func (p *Planner) AddDir(path string, origin string) error {
	return p.add(path, ModeEnsureDir, origin)
}

// AddMask requests that path be replaced by a bind of maskSource (commonly
// /dev/null), so a guest probing for it observes a clean "not present"
// rather than a stale or sensitive host resource. Unlike AddExpose, this
// does not require path to exist on the host: masking a rendezvous socket
// that the host happens not to have is a no-op for the guest either way.
func (p *Planner) AddMask(path, maskSource, origin string) error {
	if !filepath.IsAbs(path) {
		return launcherr.New(launcherr.KindUsage, path, errors.New("path must be absolute"))
	}

	clean := filepath.Clean(path)

	if pathpolicy.IsReserved(clean) {
		return p.reservedError(clean)
	}

	existing, ok := p.entries[clean]
	if ok && existing.mode > ModeReadOnly {
		return nil
	}

	p.entries[clean] = &entry{mode: ModeReadOnly, origin: origin, maskSource: maskSource}

	return nil
}

// hostRuntimePrefix is the one reserved subtree callers are allowed to
// populate directly, via AddHostRuntimeBind: the container-owned location
// the host's merged-/usr runtime is exposed at, distinct from the
// container's own /usr.
const hostRuntimePrefix = "/run/host"

// AddHostRuntimeBind binds hostSource, a path on the real host (or a
// translator rootfs), at containerTarget, which must fall under
// /run/host. Unlike AddExpose, source and target are independent paths:
// this is how the host's merged-/usr tree, /etc and os-release file are
// exposed without colliding with the container runtime's own reserved
// /usr, /etc, and without requiring every other reserved-path check to
// special-case this one subtree.
func (p *Planner) AddHostRuntimeBind(hostSource, containerTarget string, mode Mode, origin string) error {
	if mode != ModeReadOnly && mode != ModeReadWrite {
		return fmt.Errorf("exports: AddHostRuntimeBind mode must be ReadOnly or ReadWrite, got %s", mode)
	}

	if !filepath.IsAbs(hostSource) || !filepath.IsAbs(containerTarget) {
		return launcherr.New(launcherr.KindUsage, containerTarget, errors.New("path must be absolute"))
	}

	cleanTarget := filepath.Clean(containerTarget)
	if cleanTarget != hostRuntimePrefix && !strings.HasPrefix(cleanTarget, hostRuntimePrefix+"/") {
		return launcherr.New(launcherr.KindUsage, cleanTarget, fmt.Errorf("host-runtime bind target must fall under %s", hostRuntimePrefix))
	}

	cleanSource := filepath.Clean(hostSource)

	kind, err := p.root.Lstat(cleanSource)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logAdvisory(launcherr.KindPathNotFound, cleanSource)
			return launcherr.New(launcherr.KindPathNotFound, cleanSource, err)
		}

		if errors.Is(err, fs.ErrPermission) {
			p.logAdvisory(launcherr.KindPermissionDenied, cleanSource)
			return launcherr.New(launcherr.KindPermissionDenied, cleanSource, err)
		}

		return launcherr.New(launcherr.KindSetup, cleanSource, err)
	}

	switch kind {
	case KindDir, KindRegular, KindSymlink, KindSocket:
		// supported
	default:
		return launcherr.New(launcherr.KindUsage, cleanSource, fmt.Errorf("unsupported file type"))
	}

	autofs, _ := p.root.IsAutofs(cleanSource)
	if autofs {
		if err := p.root.ProbeOpen(cleanSource); err != nil {
			p.logAdvisory(launcherr.KindAutofsBlocked, cleanSource)
			return launcherr.New(launcherr.KindAutofsBlocked, cleanSource, err)
		}
	}

	existing, ok := p.entries[cleanTarget]
	if ok && existing.mode >= mode {
		return nil
	}

	p.entries[cleanTarget] = &entry{mode: mode, origin: origin, maskSource: cleanSource}

	return nil
}

func (p *Planner) add(path string, mode Mode, origin string) error {
	if !filepath.IsAbs(path) {
		return launcherr.New(launcherr.KindUsage, path, errors.New("path must be absolute"))
	}

	clean := filepath.Clean(path)

	if pathpolicy.IsReserved(clean) {
		return p.reservedError(clean)
	}

	resolved, symlinkEntries, err := p.resolveAncestors(clean, 0)
	if err != nil {
		return err
	}

	if pathpolicy.IsReserved(resolved) {
		return p.reservedError(resolved)
	}

	kind, err := p.root.Lstat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logAdvisory(launcherr.KindPathNotFound, resolved)
			return launcherr.New(launcherr.KindPathNotFound, resolved, err)
		}

		if errors.Is(err, fs.ErrPermission) {
			p.logAdvisory(launcherr.KindPermissionDenied, resolved)
			return launcherr.New(launcherr.KindPermissionDenied, resolved, err)
		}

		return launcherr.New(launcherr.KindSetup, resolved, err)
	}

	switch kind {
	case KindDir, KindRegular, KindSymlink, KindSocket:
		// supported
	default:
		return launcherr.New(launcherr.KindUsage, resolved, fmt.Errorf("unsupported file type"))
	}

	autofs, _ := p.root.IsAutofs(resolved)
	if autofs {
		if err := p.root.ProbeOpen(resolved); err != nil {
			p.logAdvisory(launcherr.KindAutofsBlocked, resolved)
			return launcherr.New(launcherr.KindAutofsBlocked, resolved, err)
		}
	}

	// Commit the ancestor symlink mirrors discovered along the way, then
	// the requested entry itself.
	for _, se := range symlinkEntries {
		p.promote(se.path, ModeSymlink, "ancestor-symlink", se.target)
	}

	p.promote(resolved, mode, origin, "")

	return nil
}

type symlinkMirror struct {
	path   string
	target string
}

// resolveAncestors walks path's components left-to-right, following any
// ancestor that is itself a symlink (other than neverSymlinkExposed
// entries), and returns the final resolved path plus the set of SYMLINK
// mirrors discovered: a host with /home -> var/home/user must appear
// inside the container the same way.
func (p *Planner) resolveAncestors(path string, depth int) (string, []symlinkMirror, error) {
	if depth > maxLoopDepth {
		return "", nil, launcherr.New(launcherr.KindSetup, path, errors.New("symlink recursion depth exceeded"))
	}

	clean := filepath.Clean(path)
	if clean == "/" {
		return clean, nil, nil
	}

	components := strings.Split(strings.TrimPrefix(clean, "/"), "/")

	prefix := ""

	for i, c := range components {
		prefix += "/" + c

		if neverSymlinkExposed[prefix] {
			continue
		}

		kind, err := p.root.Lstat(prefix)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Nothing to resolve at this ancestor; let the final
				// Lstat on the full path surface PATH_NOT_FOUND.
				continue
			}

			return "", nil, launcherr.New(launcherr.KindSetup, prefix, err)
		}

		if kind != KindSymlink {
			continue
		}

		target, err := p.root.Readlink(prefix)
		if err != nil {
			return "", nil, launcherr.New(launcherr.KindSetup, prefix, err)
		}

		resolvedTarget := target
		if !filepath.IsAbs(resolvedTarget) {
			resolvedTarget = filepath.Join(filepath.Dir(prefix), resolvedTarget)
		}

		remainder := "/" + strings.Join(components[i+1:], "/")
		if len(components) == i+1 {
			remainder = ""
		}

		newPath := filepath.Clean(resolvedTarget + remainder)

		deeper, mirrors, err := p.resolveAncestors(newPath, depth+1)
		if err != nil {
			return "", nil, err
		}

		mirrors = append(mirrors, symlinkMirror{path: prefix, target: target})

		return deeper, mirrors, nil
	}

	return clean, nil, nil
}

func (p *Planner) reservedError(path string) error {
	err := launcherr.New(launcherr.KindReservedPath, path, errors.New("path is reserved by the container core"))

	if !p.warnedReserved[path] {
		p.warnedReserved[path] = true

		if p.log != nil {
			p.log.Warnf("reserved path rejected: %s", path)
		}
	} else if p.log != nil {
		p.log.Logf("reserved path rejected (already warned): %s", path)
	}

	return err
}

func (p *Planner) logAdvisory(kind launcherr.Kind, path string) {
	if p.log == nil {
		return
	}

	p.log.Logf("%s: %s", kind, path)
}

// promote inserts or upgrades the entry for path, keeping the highest mode
// seen per the partial order TMPFS_MASK < ENSURE_DIR < SYMLINK < READ_ONLY
// < READ_WRITE.
func (p *Planner) promote(path string, mode Mode, origin, symlinkTarget string) {
	existing, ok := p.entries[path]
	if !ok || mode > existing.mode {
		p.entries[path] = &entry{mode: mode, origin: origin, symlinkTarget: symlinkTarget}
		return
	}

	if mode == existing.mode && existing.symlinkTarget == "" && symlinkTarget != "" {
		existing.symlinkTarget = symlinkTarget
	}
}

// IsVisible simulates the effect of all entries recorded so far and
// reports the resulting visibility of path: ENSURE_DIR is transparent,
// SYMLINK applies only at exactly its own path, TMPFS_MASK hides its
// subtree unless a more specific entry re-exposes it, and any BIND mode
// makes its subtree visible at that mode.
func (p *Planner) IsVisible(path string) Visibility {
	clean := filepath.Clean(path)

	for _, anc := range ancestorChainLongestFirst(clean) {
		e, ok := p.entries[anc]
		if !ok {
			continue
		}

		switch e.mode {
		case ModeEnsureDir:
			continue
		case ModeSymlink:
			if anc == clean {
				return VisibleReadOnly
			}

			continue
		case ModeTmpfsMask:
			return Hidden
		case ModeReadOnly:
			return VisibleReadOnly
		case ModeReadWrite:
			return VisibleReadWrite
		}
	}

	return Hidden
}

// ancestorChainLongestFirst returns path and each of its ancestors, longest
// (most specific) first, down to "/".
func ancestorChainLongestFirst(path string) []string {
	if path == "/" {
		return []string{"/"}
	}

	var chain []string

	cur := path
	for {
		chain = append(chain, cur)

		if cur == "/" {
			break
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}

		cur = parent
	}

	return chain
}

// Finalize produces the deterministic, ordered op stream: sorted by target
// path, lexically.
func (p *Planner) Finalize() []Op {
	ops := make([]Op, 0, len(p.entries))

	for path, e := range p.entries {
		switch e.mode {
		case ModeTmpfsMask:
			ops = append(ops, Op{Kind: OpTmpfs, Target: path})
		case ModeEnsureDir:
			ops = append(ops, Op{Kind: OpDir, Target: path})
		case ModeSymlink:
			ops = append(ops, Op{Kind: OpSymlink, Target: path, SymlinkRelTarget: e.symlinkTarget})
		case ModeReadOnly:
			source := path
			if e.maskSource != "" {
				source = e.maskSource
			}

			ops = append(ops, Op{Kind: OpBindRO, Source: source, Target: path})
		case ModeReadWrite:
			source := path
			if e.maskSource != "" {
				source = e.maskSource
			}

			ops = append(ops, Op{Kind: OpBindRW, Source: source, Target: path})
		}
	}

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Target != ops[j].Target {
			return ops[i].Target < ops[j].Target
		}

		return ops[i].Kind < ops[j].Kind
	})

	return ops
}
