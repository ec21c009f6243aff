package concurrency

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// ProcessOptions configures RunProcessToCompletion. Cmd is required; every
// other field has a usable zero value.
type ProcessOptions struct {
	Cmd     []string
	Cwd     string
	Env     []string // additional "KEY=VALUE" entries appended to the current environment; empty means inherit only
	Timeout time.Duration

	// StdoutCb/StderrCb, if set, are invoked with each chunk of output as it
	// arrives, in addition to it being buffered for the returned result.
	StdoutCb func(chunk []byte)
	StderrCb func(chunk []byte)

	// IsCheckedAfter, if true, causes a non-zero exit to be reported as a
	// *ProcessError; if false the caller inspects ProcessResult.ExitCode.
	IsCheckedAfter bool
}

// ProcessResult carries the outcome of a subprocess run to completion.
type ProcessResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// callbackWriter tees into a buffer and an optional callback.
type callbackWriter struct {
	buf *bytes.Buffer
	cb  func([]byte)
}

func (w *callbackWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if w.cb != nil {
		w.cb(p)
	}
	return len(p), nil
}

// RunProcessToCompletion runs opts.Cmd under ctx, capturing stdout/stderr
// and waiting for it to exit (or for ctx/opts.Timeout to fire, whichever
// comes first). It never returns a raw *exec.ExitError: failures are
// reported as ProcessError, ProcessTimeoutError, or ProcessSetupError so
// every caller throughout the codebase handles subprocess failure the same
// way.
func RunProcessToCompletion(ctx context.Context, opts ProcessOptions) (*ProcessResult, error) {
	if len(opts.Cmd) == 0 {
		return nil, &ProcessSetupError{Cmd: opts.Cmd, Err: errEmptyCommand}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, opts.Cmd[0], opts.Cmd[1:]...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &callbackWriter{buf: &stdout, cb: opts.StdoutCb}
	cmd.Stderr = &callbackWriter{buf: &stderr, cb: opts.StderrCb}

	if err := cmd.Start(); err != nil {
		return nil, &ProcessSetupError{Cmd: opts.Cmd, Err: err}
	}

	err := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &ProcessTimeoutError{Cmd: opts.Cmd, Timeout: opts.Timeout.String()}
	}
	if runCtx.Err() == context.Canceled && ctx.Err() == context.Canceled {
		return nil, &CancelledError{Group: ""}
	}

	result := &ProcessResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	if err != nil && result.ExitCode != 0 && opts.IsCheckedAfter {
		return result, &ProcessError{
			Cmd:      opts.Cmd,
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
		}
	}

	return result, nil
}

var errEmptyCommand = &emptyCommandError{}

type emptyCommandError struct{}

func (*emptyCommandError) Error() string { return "empty command" }
