// Package sandbox invokes an external bwrap-style launcher to run a
// derivation's builder in an isolated namespace: its own mount and PID
// namespace, a scratch /build, read-only binds for the declared inputs,
// and a scrubbed environment containing only what the derivation itself
// declared plus the handful of variables Nix builders expect.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/nixlite/nixd/internal/proto"
	"golang.org/x/sys/unix"
)

// Launcher runs derivations through a configured bwrap-compatible binary.
type Launcher struct {
	// BwrapPath is the path to the sandbox launcher binary (e.g. bwrap).
	BwrapPath string
	// ShellPath is passed to builders that expect a POSIX shell at a
	// fixed path inside the sandbox (/bin/sh).
	ShellPath string
	// StoreRoot is bind-mounted read-only so builders can reference
	// already-built inputs.
	StoreRoot string
}

// Result is the outcome of running a builder to completion.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Run executes drv's builder inside a sandbox rooted at buildDir, with
// buildDir/<output name> pre-created for each declared output.
// buildCores is the client-negotiated build-cores setting, exposed to the
// builder as NIX_BUILD_CORES. The caller is responsible for materializing
// inputSrcs under buildDir (or relying on the read-only store bind) before
// calling Run.
func (l *Launcher) Run(ctx context.Context, drv *proto.BasicDerivation, buildDir string, buildCores uint64) (*Result, error) {
	args := l.bwrapArgs(buildDir)
	args = append(args, drv.Builder)
	args = append(args, drv.Args...)

	cmd := exec.CommandContext(ctx, l.BwrapPath, args...)
	cmd.Env = l.scrubbedEnv(drv, buildCores)
	cmd.Dir = buildDir

	// Ensure the sandboxed builder is reaped if nixd itself dies, rather
	// than leaking an orphan process outside any namespace.
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: unix.SIGKILL}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: elapsed}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errorsAsExitError(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, fmt.Errorf("sandbox: launch builder: %w", err)
	}

	return result, nil
}

func errorsAsExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}

	return ok
}

// bwrapArgs builds the fixed namespace/mount contract every sandboxed
// build runs under: private PID/mount/UTS/IPC namespaces, an empty /proc
// and /dev, a fresh tmpfs at /build, a read-only bind of the store so
// builders can see already-built dependencies, and, when ShellPath is
// set, a read-only bind of that shell at /bin/sh.
func (l *Launcher) bwrapArgs(buildDir string) []string {
	args := []string{
		"--unshare-all",
		"--share-net=false",
		"--die-with-parent",
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/build",
		"--bind", buildDir, "/build",
		"--ro-bind", l.StoreRoot, l.StoreRoot,
	}

	if l.ShellPath != "" {
		args = append(args, "--ro-bind", l.ShellPath, "/bin/sh")
	}

	return append(args, "--chdir", "/build")
}

// scrubbedEnv builds the environment a builder runs with, in three
// layers, each overriding the last: the fixed set of variables Nix
// builders expect, the derivation's own declared Env, and finally one
// entry per declared output mapping output_name to its predicted path.
// The predicted path is relative to /build (out.Name, the per-output
// directory Build pre-creates under buildDir) rather than the eventual
// absolute store path: nixd does not bind-mount individual outputs at
// their final store location the way a full Nix sandbox does, so the
// only path a builder can actually write through is the one already
// bound at /build. A builder writing `echo hi > $out/file` therefore
// lands in buildDir/<output name>, which registerOutputs then packs and
// moves into the store. nixd's own process environment is never
// inherited.
func (l *Launcher) scrubbedEnv(drv *proto.BasicDerivation, buildCores uint64) []string {
	vars := map[string]string{
		"PATH":            "/path-not-set",
		"HOME":            "/homeless-shelter",
		"NIX_BUILD_TOP":   "/build",
		"TMPDIR":          "/build",
		"TMP":             "/build",
		"TEMPDIR":         "/build",
		"TEMP":            "/build",
		"NIX_STORE":       l.StoreRoot,
		"NIX_BUILD_CORES": strconv.FormatUint(buildCores, 10),
	}

	if l.ShellPath != "" {
		vars["SHELL"] = l.ShellPath
	}

	for _, kv := range drv.Env {
		vars[kv[0]] = kv[1]
	}

	for _, out := range drv.Outputs {
		vars[out.Name] = out.Name
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}

	return env
}
