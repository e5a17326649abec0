package exports

// FileKind is the set of file types the planner cares about. Anything
// else is an unsupported type and the export fails.
type FileKind int

const (
	KindMissing FileKind = iota
	KindDir
	KindRegular
	KindSymlink
	KindSocket
	KindOther
)

// HostRoot abstracts the filesystem the planner resolves paths against: the
// real host root, or a mock root used in tests. All planner logic goes
// through this interface so it is unit-testable without touching the real
// filesystem.
type HostRoot interface {
	// Lstat reports the kind of the entry at path without following a
	// final symlink component. path is always absolute.
	Lstat(path string) (FileKind, error)

	// Readlink returns the literal (host, possibly relative) target of the
	// symlink at path.
	Readlink(path string) (string, error)

	// IsAutofs reports whether path is served by an autofs mount.
	IsAutofs(path string) (bool, error)

	// ProbeOpen attempts to open path as a directory in a way that can be
	// bounded in time; it returns a non-nil error if the open does not
	// complete within the guard's timeout (AUTOFS_BLOCKED) or otherwise
	// fails.
	ProbeOpen(path string) error
}
