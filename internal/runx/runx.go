// Package runx is the sole subprocess execution surface used by every
// higher layer (git, scheduler queries, Lmod, compilation). It mirrors
// the shape of the slurm-client's adapter-layer process execution while
// folding in the run_cmd diagnostic-message contract: a caller supplies
// optional pre/post/error log messages and chooses whether a non-zero
// exit is fatal.
package runx

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"syscall"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
)

// Options configures a single Run invocation.
type Options struct {
	Cwd           string
	Env           []string // when non-nil, sets the child's environment outright (not merged with the inherited one)
	MsgPre        string
	MsgPost       string
	MsgErr        string
	RaiseOnError  bool
	Logger        clog.Logger
}

// Result is the captured outcome of a subprocess invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes cmd through /bin/sh -c, capturing stdout and stderr
// separately (the reference implementation captures both but reasons
// about stdout and stderr independently, unlike a combined-output
// capture). On a non-zero exit: if opts.RaiseOnError, returns a
// cstarerrors.Subprocess error with the command and stderr attached;
// otherwise logs at error level and returns the (stripped) stdout with
// a nil error.
func Run(ctx context.Context, cmd string, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = clog.Default
	}

	if opts.MsgPre != "" {
		logger.Debug(opts.MsgPre, "cmd", cmd)
	}

	c := exec.CommandContext(ctx, "/bin/sh", "-c", cmd)
	if opts.Cwd != "" {
		c.Dir = opts.Cwd
	}
	if opts.Env != nil {
		c.Env = append([]string{}, opts.Env...)
	}
	// Isolate the child's process group so a caller-side interrupt does
	// not propagate directly to the subprocess (same rationale as the
	// sudo/non-sudo split in osexec).
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()

	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if err == nil {
		if opts.MsgPost != "" {
			logger.Debug(opts.MsgPost, "cmd", cmd)
		}
		return res, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
	} else {
		res.ExitCode = -1
	}

	msg := opts.MsgErr
	if msg == "" {
		msg = "command failed"
	}
	logger.Error(msg, "cmd", cmd, "exit_code", res.ExitCode, "stderr", res.Stderr)

	if opts.RaiseOnError {
		return res, cstarerrors.Subprocess("runx.Run", cmd, res.Stderr, err)
	}
	return res, nil
}
