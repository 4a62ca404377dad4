package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// LocalExecutor runs commands as child processes of this one. It is used
// when the process shares the bench filesystem with the runtime.
type LocalExecutor struct {
	logger         zerolog.Logger
	defaultTimeout time.Duration
}

// NewLocalExecutor creates a new LocalExecutor.
func NewLocalExecutor(logger zerolog.Logger, defaultTimeout time.Duration) *LocalExecutor {
	return &LocalExecutor{
		logger:         logger.With().Str("component", "local-executor").Logger(),
		defaultTimeout: defaultTimeout,
	}
}

// Execute runs inv in its own process group. On timeout the whole group is
// killed so no grandchildren are left behind. A command that has started is
// only ever stopped by its timeout, never by ctx.
func (l *LocalExecutor) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s: %w", inv.Command, err)
	}
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = l.defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.Command, inv.Args...)
	cmd.Dir = inv.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	l.logger.Debug().Str("command", inv.Command).Strs("args", inv.Args).Dur("timeout", timeout).Msg("exec local command")

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		l.logger.Warn().Str("command", inv.Command).Dur("timeout", timeout).Msg("command timed out, process group killed")
		return timedOutResult(output.String(), timeout, elapsed), nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				ExitCode: exitErr.ExitCode(),
				Output:   output.String(),
				Duration: elapsed,
			}, nil
		}
		return nil, fmt.Errorf("%w: run %s: %w", ErrInfrastructure, inv.Command, err)
	}

	return &Result{
		ExitCode: 0,
		Output:   output.String(),
		Duration: elapsed,
	}, nil
}
