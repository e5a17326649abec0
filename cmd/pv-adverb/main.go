// Command pv-adverb is the in-container supervisor: it finishes
// environment setup inside the new namespaces, execs the guest command,
// and supervises it until exit. The supervision logic lives in
// internal/adverb; this file only parses flags and wires them together.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/pressure-vessel/launcher/internal/adverb"
	"github.com/pressure-vessel/launcher/internal/launcherr"
	"github.com/pressure-vessel/launcher/internal/preload"
)

const executableName = "pv-adverb"

func main() {
	os.Exit(Run(os.Args, envToMap(os.Environ()), os.Stderr))
}

// Run is the injected entry point; it returns the exit code instead of
// calling os.Exit so tests can invoke it directly.
func Run(args []string, env map[string]string, stderr io.Writer) int {
	flags := flag.NewFlagSet(executableName, flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}
	flags.SetOutput(&strings.Builder{})

	flagExitWithParent := flags.Bool("exit-with-parent", true, "Die when the parent process dies")
	flagSubreaper := flags.Bool("subreaper", true, "Become the reaper for orphaned descendants")
	flagLockFile := flags.StringArray("lock-file", nil, "Acquire an advisory lock on `path` before exec (repeatable)")
	flagLockFileWait := flags.Bool("lock-file-wait", false, "Block instead of failing if a lock is held")
	flagAssignFD := flags.StringArray("assign-fd", nil, "Duplicate fd `target=source` before exec (repeatable)")
	flagPassFD := flags.IntSlice("pass-fd", nil, "Keep inherited `fd` open across exec (repeatable)")
	flagLDPreload := flags.StringArray("ld-preload", nil, "Add a preload module, `path[:abi=tuple]` (repeatable)")
	flagLDAudit := flags.StringArray("ld-audit", nil, "Add an audit module, `path[:abi=tuple]` (repeatable)")
	flagRegenCache := flags.Bool("regenerate-ld-cache", false, "Regenerate the dynamic linker cache before exec")
	flagCacheOutputDir := flags.String("ld-cache-output-dir", "", "Directory to write the regenerated ld.so.cache into")
	flagRuntimeConf := flags.String("runtime-ld-conf", "/etc/ld.so.conf", "Runtime's own ld.so.conf to fold into the regenerated cache")
	flagExtraConf := flags.StringArray("ld-conf-entry", nil, "Extra absolute path to add to the regenerated ld.so.conf (repeatable)")
	flagCacheVerbose := flags.Bool("ld-cache-verbose", false, "Pass -v to ldconfig")
	flagGenLocales := flags.Bool("generate-locales", false, "Generate missing locales before exec")
	flagLocaleHelper := flags.String("locale-gen-helper", "/usr/lib/pressure-vessel/locale-gen", "Path to the locale-generation helper")
	flagIdleTimeout := flags.Int64("terminate-idle-timeout", 0, "Seconds of idle time after the primary child exits before sending SIGTERM to the rest (0 disables)")
	flagTerminateTimeout := flags.Int64("terminate-timeout", 10, "Seconds to wait after SIGTERM before sending SIGKILL")

	if err := flags.Parse(args[1:]); err != nil {
		fprintError(stderr, err)

		return launcherr.ExitUsage
	}

	argv := flags.Args()
	if len(argv) == 0 {
		fprintError(stderr, fmt.Errorf("no command given"))

		return launcherr.ExitUsage
	}

	locks := make([]adverb.LockRequest, 0, len(*flagLockFile))
	for _, p := range *flagLockFile {
		locks = append(locks, adverb.LockRequest{Path: p, Create: true, Wait: *flagLockFileWait, Exclusive: true})
	}

	fdAssignments, err := parseFDAssignments(*flagAssignFD)
	if err != nil {
		fprintError(stderr, err)

		return launcherr.ExitUsage
	}

	preloadEntries, arches, err := groupPreloadEntries(*flagLDPreload, preload.VarPreload)
	if err != nil {
		fprintError(stderr, err)

		return launcherr.ExitUsage
	}

	auditEntries, auditArches, err := groupPreloadEntries(*flagLDAudit, preload.VarAudit)
	if err != nil {
		fprintError(stderr, err)

		return launcherr.ExitUsage
	}

	preloadEntries = append(preloadEntries, auditEntries...)
	arches = mergeArches(arches, auditArches)

	opts := adverb.Options{
		Argv:             argv,
		Env:              env,
		ExitWithParent:   *flagExitWithParent,
		Subreaper:        *flagSubreaper,
		Locks:            locks,
		PreloadEntries:   preloadEntries,
		RegenerateCache:  *flagRegenCache,
		CacheOutputDir:   *flagCacheOutputDir,
		RuntimeConfPath:  *flagRuntimeConf,
		ExtraConfEntries: *flagExtraConf,
		CacheVerbose:     *flagCacheVerbose,
		GenerateLocales:  *flagGenLocales,
		LocaleHelperPath: *flagLocaleHelper,
		FDAssignments:    fdAssignments,
		PassFDs:          *flagPassFD,
		IdleTimeout:      *flagIdleTimeout,
		TerminateTimeout: *flagTerminateTimeout,
	}

	result := adverb.Supervise(context.Background(), arches, opts)

	return result.ExitCode
}

func parseFDAssignments(raw []string) ([]adverb.FDAssignment, error) {
	out := make([]adverb.FDAssignment, 0, len(raw))

	for _, entry := range raw {
		target, source, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --assign-fd %q, want target=source", entry)
		}

		targetFD, err := strconv.Atoi(target)
		if err != nil {
			return nil, fmt.Errorf("invalid --assign-fd target %q: %w", target, err)
		}

		sourceFD, err := strconv.Atoi(source)
		if err != nil {
			return nil, fmt.Errorf("invalid --assign-fd source %q: %w", source, err)
		}

		out = append(out, adverb.FDAssignment{Target: targetFD, Source: sourceFD})
	}

	return out, nil
}

// groupPreloadEntries parses repeated "path[:abi=tuple]" flag values into
// groups of preload.Entry, one group per basename so the Adverb's ABI
// staging can consolidate same-named modules across architectures (e.g.
// gameoverlayrenderer.so).
func groupPreloadEntries(raw []string, kind preload.VarKind) ([][]preload.Entry, []preload.Arch, error) {
	groups := make(map[string][]preload.Entry)
	order := make([]string, 0, len(raw))
	arches := make([]preload.Arch, 0)
	seenArch := make(map[preload.Arch]bool)

	for _, entry := range raw {
		abi, literal := splitABISuffix(entry)

		if literal == "" {
			return nil, nil, fmt.Errorf("invalid preload entry %q", entry)
		}

		if abi != "" && !seenArch[abi] {
			seenArch[abi] = true

			arches = append(arches, abi)
		}

		basename := path.Base(literal)

		if _, ok := groups[basename]; !ok {
			order = append(order, basename)
		}

		groups[basename] = append(groups[basename], preload.Entry{Kind: kind, Literal: literal, ABI: abi})
	}

	out := make([][]preload.Entry, 0, len(order))
	for _, basename := range order {
		out = append(out, groups[basename])
	}

	return out, arches, nil
}

// splitABISuffix recognizes an optional ":abi=<tuple>" selector after the
// preload literal, as in "libMangoHud.so:abi=x86_64-linux-gnu". The last
// ":abi=" is taken as the selector; an empty or slash-containing tuple is
// not a selector and leaves the entry whole.
func splitABISuffix(entry string) (preload.Arch, string) {
	if i := strings.LastIndex(entry, ":abi="); i >= 0 {
		if abi := entry[i+len(":abi="):]; abi != "" && !strings.Contains(abi, "/") {
			return preload.Arch(abi), entry[:i]
		}
	}

	return "", entry
}

func mergeArches(a, b []preload.Arch) []preload.Arch {
	seen := make(map[preload.Arch]bool, len(a))

	out := make([]preload.Arch, 0, len(a)+len(b))
	for _, arch := range a {
		if !seen[arch] {
			seen[arch] = true

			out = append(out, arch)
		}
	}

	for _, arch := range b {
		if !seen[arch] {
			seen[arch] = true

			out = append(out, arch)
		}
	}

	return out
}

func envToMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))

	for _, kv := range environ {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			m[kv[:idx]] = kv[idx+1:]
		}
	}

	return m
}

func fprintError(out io.Writer, err error) {
	_, _ = fmt.Fprintln(out, "pv-adverb: error:", err)
}
