// Package testfs is an in-memory mock of exports.HostRoot, grounded on the
// dupedog project's in-memory filesystem harness: a flat map from path to
// node rather than a real directory tree, enough to exercise the planner's
// ancestor-walk and autofs-guard logic without touching disk.
package testfs

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/pressure-vessel/launcher/internal/exports"
)

type node struct {
	kind          exports.FileKind
	symlinkTarget string
	autofs        bool
	probeErr      error
}

// Root is an in-memory exports.HostRoot. The zero value is not usable; use
// New.
type Root struct {
	nodes map[string]*node
}

// New returns an empty Root. Callers populate it with Dir/File/Symlink/
// Socket/Autofs before handing it to exports.New.
func New() *Root {
	return &Root{nodes: make(map[string]*node)}
}

func (r *Root) set(path string, n *node) *Root {
	r.nodes[filepath.Clean(path)] = n
	return r
}

// Dir registers path as a directory.
func (r *Root) Dir(path string) *Root {
	return r.set(path, &node{kind: exports.KindDir})
}

// File registers path as a regular file.
func (r *Root) File(path string) *Root {
	return r.set(path, &node{kind: exports.KindRegular})
}

// Socket registers path as a unix socket.
func (r *Root) Socket(path string) *Root {
	return r.set(path, &node{kind: exports.KindSocket})
}

// Symlink registers path as a symlink with the given literal (unresolved)
// target text.
func (r *Root) Symlink(path, target string) *Root {
	return r.set(path, &node{kind: exports.KindSymlink, symlinkTarget: target})
}

// Autofs marks an already-registered path as served by an autofs mount.
func (r *Root) Autofs(path string) *Root {
	clean := filepath.Clean(path)

	n, ok := r.nodes[clean]
	if !ok {
		n = &node{kind: exports.KindDir}
		r.nodes[clean] = n
	}

	n.autofs = true

	return r
}

// FailProbe makes ProbeOpen fail for path, simulating a hung/blocked
// autofs mount that never completes its open() call.
func (r *Root) FailProbe(path string) *Root {
	clean := filepath.Clean(path)

	n, ok := r.nodes[clean]
	if !ok {
		n = &node{kind: exports.KindDir}
		r.nodes[clean] = n
	}

	n.probeErr = fmt.Errorf("testfs: autofs probe of %s timed out", clean)

	return r
}

func (r *Root) Lstat(path string) (exports.FileKind, error) {
	n, ok := r.nodes[filepath.Clean(path)]
	if !ok {
		return exports.KindMissing, fs.ErrNotExist
	}

	return n.kind, nil
}

func (r *Root) Readlink(path string) (string, error) {
	n, ok := r.nodes[filepath.Clean(path)]
	if !ok || n.kind != exports.KindSymlink {
		return "", fmt.Errorf("testfs: %s is not a symlink", path)
	}

	return n.symlinkTarget, nil
}

func (r *Root) IsAutofs(path string) (bool, error) {
	n, ok := r.nodes[filepath.Clean(path)]
	if !ok {
		return false, nil
	}

	return n.autofs, nil
}

func (r *Root) ProbeOpen(path string) error {
	n, ok := r.nodes[filepath.Clean(path)]
	if !ok {
		return fmt.Errorf("testfs: %s does not exist", path)
	}

	return n.probeErr
}
