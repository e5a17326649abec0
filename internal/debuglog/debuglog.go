// Package debuglog provides structured debug output for the launcher. It is
// disabled by default (the zero value of Logger is a working no-op) and
// writes to an injected io.Writer only when one is configured.
package debuglog

import (
	"fmt"
	"io"
	"strings"
)

// Logger writes structured startup/decision diagnostics. A nil *Logger, or
// one constructed with a nil output, is a safe no-op: every method checks
// for a nil receiver or nil output before writing.
type Logger struct {
	output io.Writer
}

// New returns a Logger writing to output. If output is nil, the logger is
// disabled and all methods become no-ops.
func New(output io.Writer) *Logger {
	return &Logger{output: output}
}

// Enabled reports whether the logger will actually write anything.
func (l *Logger) Enabled() bool {
	return l != nil && l.output != nil
}

// Section writes a section header.
func (l *Logger) Section(name string) {
	if !l.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(l.output, "\n=== %s ===\n", name)
}

// Logf writes a formatted line.
func (l *Logger) Logf(format string, args ...any) {
	if !l.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(l.output, format+"\n", args...)
}

// Bulletf writes an indented bullet item.
func (l *Logger) Bulletf(format string, args ...any) {
	if !l.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(l.output, "  • "+format+"\n", args...)
}

// Warnf writes a warning-level line. Warnings are the only log level the
// caller-facing contract distinguishes
// from info: ReservedPath warns once per path, everything else advisory
// logs at info. Warnf writes directly, with a "warning: " prefix in place
// of Logf's bullet.
func (l *Logger) Warnf(format string, args ...any) {
	if !l.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(l.output, "warning: "+format+"\n", args...)
}

// Export records a single export decision: the path as requested, the
// canonical path actually used, the mode it resolved to, and where the
// request came from (env var name, CLI flag, preset, etc).
func (l *Logger) Export(requested, canonical, mode, source string) {
	if !l.Enabled() {
		return
	}

	if requested == canonical {
		_, _ = fmt.Fprintf(l.output, "  %s [%s] (from %s)\n", canonical, mode, source)
	} else {
		_, _ = fmt.Fprintf(l.output, "  %s -> %s [%s] (from %s)\n", requested, canonical, mode, source)
	}
}

// ConfigFile records whether a config file at a given label/path was
// loaded.
func (l *Logger) ConfigFile(label, path string, loaded bool) {
	if !l.Enabled() {
		return
	}

	if loaded {
		_, _ = fmt.Fprintf(l.output, "  %s: %s\n", label, path)
	} else {
		_, _ = fmt.Fprintf(l.output, "  %s: (not found)\n", label)
	}
}

// BoolSetting records a boolean setting's value and its source layer.
func (l *Logger) BoolSetting(name string, value bool, source string) {
	if !l.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(l.output, "  %s: %t (%s)\n", name, value, source)
}

// Ops writes one line per mount/container-helper argument group, grouping
// trailing non-flag values under the flag they belong to.
func (l *Logger) Ops(args []string) {
	if !l.Enabled() {
		return
	}

	idx := 0
	for idx < len(args) {
		if strings.HasPrefix(args[idx], "--") {
			flagArg := args[idx]
			next := idx + 1

			for next < len(args) && !strings.HasPrefix(args[next], "--") {
				next++
			}

			line := append([]string{flagArg}, args[idx+1:next]...)
			_, _ = fmt.Fprintf(l.output, "  %s\n", strings.Join(line, " "))
			idx = next
		} else {
			_, _ = fmt.Fprintf(l.output, "  %s\n", args[idx])
			idx++
		}
	}
}
