// Package envoverlay implements a layered environment-variable mapping: a
// variable name maps to {unset, inherit-from-caller, set-to-value},
// composed last-writer-wins,
// with three serialization forms for the three consumers downstream (direct
// execve, the container-helper argv, and the setuid-helper fd handoff).
package envoverlay

import (
	"fmt"
	"sort"
	"strings"
)

// actionKind is the closed set of operations a variable can carry.
type actionKind int

const (
	actionSet actionKind = iota + 1
	actionUnset
	actionInherit
)

type action struct {
	kind  actionKind
	value string
}

// Overlay is a layered mapping from variable name to action. The zero value
// is ready to use.
type Overlay struct {
	actions map[string]action
}

// New returns an empty Overlay.
func New() *Overlay {
	return &Overlay{actions: make(map[string]action)}
}

// Set records that name should be set to value when applied.
func (o *Overlay) Set(name, value string) error {
	if err := validateName(name); err != nil {
		return err
	}

	o.ensure()
	o.actions[name] = action{kind: actionSet, value: value}

	return nil
}

// Unset records that name should be absent from the final environment.
func (o *Overlay) Unset(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	o.ensure()
	o.actions[name] = action{kind: actionUnset}

	return nil
}

// Inherit records that name's value should be taken from the base
// environment passed to Apply, resolved late.
func (o *Overlay) Inherit(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	o.ensure()
	o.actions[name] = action{kind: actionInherit}

	return nil
}

// Contains reports whether name has an action recorded.
func (o *Overlay) Contains(name string) bool {
	if o == nil || o.actions == nil {
		return false
	}

	_, ok := o.actions[name]

	return ok
}

// Get returns the literal value recorded for name via Set, and whether one
// exists. It does not resolve Inherit actions (there is no base env at this
// point); use Apply for the resolved value.
func (o *Overlay) Get(name string) (string, bool) {
	if o == nil || o.actions == nil {
		return "", false
	}

	a, ok := o.actions[name]
	if !ok || a.kind != actionSet {
		return "", false
	}

	return a.value, true
}

func (o *Overlay) ensure() {
	if o.actions == nil {
		o.actions = make(map[string]action)
	}
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("envoverlay: empty variable name")
	}

	if strings.ContainsAny(name, "=\x00") {
		return fmt.Errorf("envoverlay: invalid variable name %q", name)
	}

	return nil
}

// Apply produces the final environment as a map, given base (the outer
// environment against which Inherit actions are resolved).
func (o *Overlay) Apply(base map[string]string) map[string]string {
	result := make(map[string]string, len(base)+len(o.actions))

	for k, v := range base {
		result[k] = v
	}

	if o == nil {
		return result
	}

	for name, a := range o.actions {
		switch a.kind {
		case actionSet:
			result[name] = a.value
		case actionUnset:
			delete(result, name)
		case actionInherit:
			if v, ok := base[name]; ok {
				result[name] = v
			} else {
				delete(result, name)
			}
		}
	}

	return result
}

// Compose returns a new Overlay equivalent to applying o then next, with
// next's actions winning on conflicts (last-writer-wins). This makes
// Apply(Apply(env, o), next) equal to Apply(env, o.Compose(next)), as long
// as Inherit entries in o are not shadowed differently across the two
// applications (inherit is always resolved against the base passed to the
// final Apply call).
func (o *Overlay) Compose(next *Overlay) *Overlay {
	out := New()

	if o != nil {
		for name, a := range o.actions {
			out.actions[name] = a
		}
	}

	if next != nil {
		for name, a := range next.actions {
			out.actions[name] = a
		}
	}

	return out
}

// ExecveSlice renders the final environment (after Apply) as a sorted
// NAME=VALUE slice suitable for exec.Cmd.Env / syscall.Exec.
func ExecveSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}

	sort.Strings(out)

	return out
}

// HelperArgs renders o as a pair of argument lists for a container helper
// that accepts --setenv NAME VALUE / --unsetenv NAME, sorted by name for
// determinism. Inherit actions are not representable this way (the helper
// has no notion of "inherit from caller"); callers should resolve Inherit
// via Apply before calling HelperArgs, or accept that inherited variables
// are passed through implicitly because the helper itself inherits the
// launcher's environment.
func (o *Overlay) HelperArgs() []string {
	if o == nil {
		return nil
	}

	names := make([]string, 0, len(o.actions))
	for name := range o.actions {
		names = append(names, name)
	}

	sort.Strings(names)

	args := make([]string, 0, len(names)*2)

	for _, name := range names {
		a := o.actions[name]

		switch a.kind {
		case actionSet:
			args = append(args, "--setenv", name, a.value)
		case actionUnset:
			args = append(args, "--unsetenv", name)
		case actionInherit:
			// No helper flag for "inherit"; the helper itself already
			// inherits the launcher's process environment, so nothing
			// needs to be emitted.
		}
	}

	return args
}

// BinaryRecords renders the final environment (after Apply) as the
// NUL-separated NAME=VALUE binary form passed over a file descriptor to a
// setuid container helper, which cannot otherwise receive LD_PRELOAD /
// LD_LIBRARY_PATH-shaped variables through its filtered argv/envp.
func BinaryRecords(env map[string]string) []byte {
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}

	sort.Strings(names)

	var buf strings.Builder

	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte('=')
		buf.WriteString(env[name])
		buf.WriteByte(0)
	}

	return []byte(buf.String())
}
