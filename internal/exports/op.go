package exports

// OpKind is the kind of mount/filesystem operation the container-helper
// argv builder turns into a bwrap flag.
type OpKind int

const (
	OpDir OpKind = iota
	OpSymlink
	OpTmpfs
	OpBindRO
	OpBindRW
)

func (k OpKind) String() string {
	switch k {
	case OpDir:
		return "dir"
	case OpSymlink:
		return "symlink"
	case OpTmpfs:
		return "tmpfs"
	case OpBindRO:
		return "bind-ro"
	case OpBindRW:
		return "bind-rw"
	default:
		return "unknown"
	}
}

// Op is one concrete filesystem operation to apply inside the container,
// in the order Finalize produced it.
type Op struct {
	Kind OpKind

	// Source is the host path to bind from. Empty for OpDir, OpSymlink and
	// OpTmpfs.
	Source string

	// Target is the path inside the container.
	Target string

	// SymlinkRelTarget is the literal readlink() text to recreate when
	// Kind == OpSymlink.
	SymlinkRelTarget string
}

// BwrapArgs renders op as the bwrap argv fragment implementing it.
func (op Op) BwrapArgs() []string {
	switch op.Kind {
	case OpDir:
		return []string{"--dir", op.Target}
	case OpSymlink:
		return []string{"--symlink", op.SymlinkRelTarget, op.Target}
	case OpTmpfs:
		return []string{"--tmpfs", op.Target}
	case OpBindRO:
		return []string{"--ro-bind", op.Source, op.Target}
	case OpBindRW:
		return []string{"--bind", op.Source, op.Target}
	default:
		return nil
	}
}
