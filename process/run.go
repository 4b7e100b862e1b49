package process

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/kbukum/nodeflow/errors"
)

// Run executes a subprocess and waits for it to complete. When ctx ends the
// process group gets SIGTERM, then SIGKILL after the grace period.
//
// Errors are typed: a missing binary is InvalidInput, a context deadline is
// Timeout, and a non-zero exit wraps the captured stderr.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, errors.InvalidInput("command", "binary is required")
	}
	if _, err := exec.LookPath(cmd.Binary); err != nil {
		return nil, errors.InvalidInput("command", err.Error()).WithCause(err)
	}

	grace := cmd.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // running configured commands is the point
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	// Own process group so the whole tree is signaled.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = grace

	start := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		return res, nil
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, errors.Timeout(cmd.Binary).WithCause(err)
	case ctx.Err() != nil:
		return res, fmt.Errorf("process: %s killed: %w", cmd.Binary, ctx.Err())
	}
	msg := bytes.TrimSpace(res.Stderr)
	if len(msg) > 0 {
		return res, fmt.Errorf("process: %s exit code %d: %s: %w", cmd.Binary, res.ExitCode, msg, err)
	}
	return res, fmt.Errorf("process: %s exit code %d: %w", cmd.Binary, res.ExitCode, err)
}

func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil // inherit
	}
	return append(os.Environ(), extra...)
}
