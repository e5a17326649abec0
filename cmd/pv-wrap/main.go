// Command pv-wrap is the outer launcher: it resolves configuration, plans
// the container's filesystem exports and environment overlay, and execs
// the container helper chain, supervising the two-stage (SIGTERM then
// SIGKILL) shutdown around it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/pressure-vessel/launcher/internal/debuglog"
	"github.com/pressure-vessel/launcher/internal/exports"
	"github.com/pressure-vessel/launcher/internal/launchconfig"
	"github.com/pressure-vessel/launcher/internal/wrap"
)

const (
	executableName = "pv-wrap"

	exitCodeSIGINT = 130

	cleanupTimeout = 10 * time.Second

	defaultAdverbName          = "pv-adverb"
	defaultContainerHelperName = "bwrap"
)

func main() {
	// Hidden autofs-probe dispatch must happen before anything else touches
	// argv or flags: a re-exec'd probe child carries exports.ProbeArg as
	// os.Args[1] and must never reach flag parsing or config loading.
	if len(os.Args) > 1 && os.Args[1] == exports.ProbeArg {
		if len(os.Args) < 3 {
			os.Exit(1)
		}

		exports.RunProbeOpen(os.Args[2])

		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	os.Exit(Run(os.Stdin, os.Stdout, os.Stderr, os.Args, envToMap(os.Environ()), sigCh))
}

// Run is the fully injected entry point, isolated from process-global
// state so it can be exercised without a real terminal or environment.
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if err := checkPlatformPrerequisites(); err != nil {
		fprintError(stderr, err)

		return 1
	}

	flags := flag.NewFlagSet(executableName, flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}
	flags.SetOutput(&strings.Builder{})

	flagHelp := flags.BoolP("help", "h", false, "Show help")
	flagCwd := flags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := flags.StringP("config", "c", "", "Use specified config `file`")
	flagHome := flags.String("home", "shared", "Home directory mode: shared, private, or transient")
	flagAppID := flags.String("app-id", "", "Application identity, used for the private home directory layout")
	flagDocker := flags.Bool("docker", false, "Enable docker socket passthrough")
	flagDebug := flags.Bool("debug", false, "Print planning details to stderr")
	flagRO := flags.StringArray("ro", nil, "Add read-only path (repeatable)")
	flagRW := flags.StringArray("rw", nil, "Add read-write path (repeatable)")
	flagAdverb := flags.String("adverb-path", defaultAdverbName, "Path to the pv-adverb binary")
	flagHelper := flags.String("container-helper", defaultContainerHelperName, "Path to the container helper (bwrap)")

	if err := flags.Parse(args[1:]); err != nil {
		fprintError(stderr, err)
		fprintln(stderr)
		printUsage(stderr)

		return 1
	}

	guestCmd := flags.Args()

	if *flagHelp || len(guestCmd) == 0 {
		printUsage(stdout)

		return 0
	}

	var log *debuglog.Logger
	if *flagDebug {
		log = debuglog.New(stderr)
	}

	cwd := *flagCwd
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}

	cfg, err := launchconfig.Load(launchconfig.LoadInput{
		WorkDir:    cwd,
		ConfigPath: *flagConfig,
		EnvVars:    env,
	})
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	dockerEnabled := *flagDocker
	if !flags.Changed("docker") && cfg.Docker != nil {
		dockerEnabled = *cfg.Docker
	}

	homeMode := wrap.HomeMode(*flagHome)

	callerHome := env["HOME"]

	planner, overlay, err := wrap.PlanAll(wrap.Options{
		HostEnv:        env,
		HomeMode:       homeMode,
		AppID:          *flagAppID,
		CallerHome:     callerHome,
		WorkDir:        cwd,
		ExtraRO:        *flagRO,
		ExtraRW:        *flagRW,
		DockerEnabled:  dockerEnabled,
		LauncherName:   executableName,
		SensitivePaths: cfg.SensitivePaths,
	}, log)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	adverbPath, err := resolveHelperPath(*flagAdverb)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	helperPath, err := resolveHelperPath(*flagHelper)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	argv := wrap.BuildHelperArgv(helperPath, planner, overlay, adverbPath, nil, guestCmd)

	if log != nil {
		log.Section("launch")
		log.Logf("%s", strings.Join(argv, " "))
	}

	execEnv := overlay.Apply(env)

	killCtx, kill := context.WithCancel(context.Background())
	defer kill()

	termCtx, terminate := context.WithCancel(killCtx)
	defer terminate()

	type result struct {
		exitCode int
		err      error
	}

	done := make(chan result, 1)

	go func() {
		code, runErr := runChain(termCtx, argv, stdin, stdout, stderr, execEnv)
		done <- result{exitCode: code, err: runErr}
	}()

	if sigCh == nil {
		r := <-done
		if r.err != nil {
			fprintError(stderr, r.err)

			return 1
		}

		return r.exitCode
	}

	select {
	case r := <-done:
		if r.err != nil {
			fprintError(stderr, r.err)

			return 1
		}

		return r.exitCode
	case <-sigCh:
		fprintln(stderr, "Interrupted, waiting up to 10s for cleanup... (Ctrl+C again to force exit)")
		terminate()
	}

	select {
	case r := <-done:
		if r.err != nil {
			fprintError(stderr, r.err)

			return 1
		}

		return exitCodeSIGINT
	case <-time.After(cleanupTimeout):
		fprintln(stderr, "Cleanup timed out, forced exit.")
		kill()
		<-done

		return exitCodeSIGINT
	case <-sigCh:
		fprintln(stderr, "Forced exit.")
		kill()
		<-done

		return exitCodeSIGINT
	}
}

func runChain(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer, env map[string]string) (int, error) {
	if len(argv) == 0 {
		return 1, errors.New("empty helper argv")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = envSlice(env)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	return 1, err
}

func resolveHelperPath(name string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}

	return exec.LookPath(name)
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

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}

	return out
}

const usageHelp = `pv-wrap - container launcher

Usage: pv-wrap [flags] <command> [args]

Flags:
  -h, --help                Show help
  -C, --cwd <dir>           Run as if started in <dir>
  -c, --config <file>       Use specified config file
      --home <mode>         Home directory mode: shared, private, transient (default: shared)
      --app-id <id>         Application identity for the private home layout
      --docker              Enable docker socket passthrough
      --debug               Print planning details to stderr
      --ro <path>           Add read-only path (repeatable)
      --rw <path>           Add read-write path (repeatable)
      --adverb-path <path>  Path to the pv-adverb binary (default: pv-adverb)
      --container-helper <path>  Path to the container helper (default: bwrap)

Examples:
  pv-wrap bash
  pv-wrap --docker --ro /data my-game
  pv-wrap --home private --app-id com.example.Game my-game`

func printUsage(out io.Writer) {
	fprintln(out, usageHelp)
}

func fprintln(out io.Writer, a ...any) {
	_, _ = fmt.Fprintln(out, a...)
}

func fprintError(out io.Writer, err error) {
	fprintln(out, "pv-wrap: error:", err)
}

func checkPlatformPrerequisites() error {
	if runtime.GOOS != "linux" {
		return errors.New("checking platform prerequisites: requires Linux (bwrap uses Linux namespaces)")
	}

	if os.Getuid() == 0 {
		return errors.New("checking platform prerequisites: cannot run as root (use a regular user account)")
	}

	if _, err := exec.LookPath(defaultContainerHelperName); err != nil {
		return errors.New("checking platform prerequisites: bwrap not found in PATH (try installing with: sudo apt install bubblewrap)")
	}

	return nil
}
