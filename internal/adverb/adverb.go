//go:build linux

package adverb

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/pressure-vessel/launcher/internal/launcherr"
	"github.com/pressure-vessel/launcher/internal/preload"
)

// execLookPath resolves argv[0] against PATH the same way exec.Command
// does internally; os.StartProcess, unlike exec.Command, performs no PATH
// search of its own.
var execLookPath = exec.LookPath

func secondsToDuration(s int64) time.Duration {
	if s <= 0 {
		return 0
	}

	return time.Duration(s) * time.Second
}

// Options configures one Adverb invocation. It is the parsed form of the
// Adverb's CLI flags.
type Options struct {
	Argv []string
	Env  map[string]string

	ExitWithParent bool
	Subreaper      bool

	Locks []LockRequest

	PreloadEntries [][]preload.Entry // grouped by basename, for Stage consolidation

	RegenerateCache  bool
	CacheOutputDir   string
	RuntimeConfPath  string
	ExtraConfEntries []string
	CacheVerbose     bool

	GenerateLocales  bool
	LocaleHelperPath string

	FDAssignments []FDAssignment
	PassFDs       []int

	IdleTimeout      int64 // seconds; 0 disables
	TerminateTimeout int64 // seconds
}

// Result is the Adverb's outcome: an exit code per the exit-status mapping,
// plus the resolved environment for diagnostic logging.
type Result struct {
	ExitCode int
	Env      map[string]string
}

// Supervise runs the full supervision sequence and returns the
// process's exit code. It is meant to be called from cmd/pv-adverb's
// main() as the last thing it does; Supervise itself never calls
// os.Exit, so callers can still flush logs.
func Supervise(ctx context.Context, arches []preload.Arch, opts Options) Result {
	if opts.ExitWithParent {
		if err := ArrangeExitWithParent(); err != nil {
			return fail(launcherr.KindSetup, err)
		}
	}

	if opts.Subreaper || opts.TerminateTimeout >= 0 {
		if err := EnableSubreaper(); err != nil {
			return fail(launcherr.KindSetup, err)
		}
	}

	forwarder := NewSignalForwarder()
	done := make(chan struct{})

	go forwarder.Run(done)
	defer close(done)

	locks, err := AcquireLocks(opts.Locks)
	if err != nil {
		return fail(launcherr.KindSetup, err)
	}

	defer ReleaseLocks(locks)

	env := cloneEnv(opts.Env)

	var abiDirs *ABIDirs

	if len(opts.PreloadEntries) > 0 {
		abiDirs, err = CreateABIDirs(arches)
		if err != nil {
			return fail(launcherr.KindSetup, err)
		}

		defer func() { _ = abiDirs.Close() }()

		staged, err := stageAll(abiDirs, opts.PreloadEntries)
		if err != nil {
			return fail(launcherr.KindSetup, err)
		}

		for name, value := range staged {
			env[name] = value
		}
	}

	if opts.RegenerateCache {
		newPath, err := RegenerateCache(ctx, opts.CacheOutputDir, opts.RuntimeConfPath, opts.ExtraConfEntries, opts.CacheVerbose)
		if err != nil {
			// Advisory: keep the caller's pre-assembled LD_LIBRARY_PATH.
		} else {
			env["LD_LIBRARY_PATH"] = newPath
		}
	}

	if opts.GenerateLocales {
		locpath, generated, err := GenerateLocales(ctx, opts.LocaleHelperPath)
		if err == nil && generated {
			env["LOCPATH"] = locpath
		}
	}

	if len(opts.Argv) == 0 {
		return fail(launcherr.KindUsage, nil)
	}

	path, err := execLookPath(opts.Argv[0])
	if err != nil {
		return fail(launcherr.KindChildSpawnFailed, err)
	}

	files, err := BuildChildFiles(opts.FDAssignments, opts.PassFDs, FDs(locks), os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		return fail(launcherr.KindSetup, err)
	}

	proc, err := os.StartProcess(path, opts.Argv, &os.ProcAttr{
		Env:   envSlice(env),
		Files: files,
	})
	if err != nil {
		return fail(launcherr.KindChildSpawnFailed, err)
	}

	forwarder.Arm(proc.Pid)

	outcome := Run(WaitLoopConfig{
		PrimaryPID:       proc.Pid,
		IdleTimeout:      secondsToDuration(opts.IdleTimeout),
		TerminateTimeout: secondsToDuration(opts.TerminateTimeout),
	})

	return Result{ExitCode: outcome.ExitCode(), Env: env}
}

func stageAll(dirs *ABIDirs, groups [][]preload.Entry) (map[string]string, error) {
	vars := make(map[string]string)

	for _, g := range groups {
		literal, err := dirs.Stage(g)
		if err != nil {
			return nil, err
		}

		name := g[0].Kind.String()
		if vars[name] != "" {
			vars[name] += ":"
		}

		vars[name] += literal
	}

	return vars, nil
}

func fail(kind launcherr.Kind, cause error) Result {
	return Result{ExitCode: launcherr.New(kind, "", cause).ExitCode()}
}

func cloneEnv(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}

	return out
}
