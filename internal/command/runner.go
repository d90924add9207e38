package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Cmd describes one external tool invocation
type Cmd struct {
	Dir  string
	Name string
	Args []string
	// Timeout bounds the call. Zero uses the runner default.
	Timeout time.Duration
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Output is what a finished command printed
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CallError is returned when a command could not run or exited non-zero.
// Message holds the tool's own output verbatim.
type CallError struct {
	Call     string
	ExitCode int
	Message  string
	Err      error
}

func (e *CallError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Call, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Call, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// ExitCode extracts the exit code from err. Nil means 0; errors that are not
// a CallError report -1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.ExitCode
	}
	return -1
}

// Runner executes external commands
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Output, error)
}

// ExecRunner runs commands as child processes. It never retries.
type ExecRunner struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewExecRunner creates a runner whose calls time out after timeout unless
// the command sets its own
func NewExecRunner(timeout time.Duration, logger *zap.Logger) *ExecRunner {
	return &ExecRunner{
		timeout: timeout,
		logger:  logger,
	}
}

// Run executes cmd and waits for it to finish
func (r *ExecRunner) Run(ctx context.Context, cmd Cmd) (Output, error) {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = r.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	out := Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	r.logger.Debug("ran command",
		zap.String("command", cmd.String()),
		zap.String("dir", cmd.Dir),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)

	if err == nil {
		return out, nil
	}

	callErr := &CallError{Call: cmd.String(), ExitCode: -1, Err: err}
	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		callErr.Message = fmt.Sprintf("timed out after %s", timeout)
		callErr.Err = ctx.Err()
	case errors.As(err, &exitErr):
		callErr.ExitCode = exitErr.ExitCode()
		callErr.Message = trimOutput(out.Stderr, out.Stdout)
	}
	out.ExitCode = callErr.ExitCode
	return out, callErr
}

// trimOutput picks the most useful tool message: stderr first, then stdout.
func trimOutput(stderr, stdout string) string {
	if s := strings.TrimSpace(stderr); s != "" {
		return s
	}
	return strings.TrimSpace(stdout)
}
