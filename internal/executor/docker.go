package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
)

// killGrace is how long timeout(1) waits after SIGTERM before SIGKILL, and
// how much longer the API call may run than the command itself.
const killGrace = 10 * time.Second

// dockerAPI is the subset of the Docker client used by DockerExecutor.
type dockerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
}

// DockerExecutor runs commands inside a long-lived runtime container via
// docker exec.
type DockerExecutor struct {
	logger         zerolog.Logger
	cli            dockerAPI
	container      string
	defaultTimeout time.Duration
}

// NewDockerExecutor creates a DockerExecutor using the Docker environment
// (DOCKER_HOST, DOCKER_CERT_PATH, ...) for the daemon connection.
func NewDockerExecutor(logger zerolog.Logger, containerName string, defaultTimeout time.Duration) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: create docker client: %w", ErrInfrastructure, err)
	}
	return newDockerExecutor(logger, cli, containerName, defaultTimeout), nil
}

func newDockerExecutor(logger zerolog.Logger, cli dockerAPI, containerName string, defaultTimeout time.Duration) *DockerExecutor {
	return &DockerExecutor{
		logger:         logger.With().Str("component", "docker-executor").Logger(),
		cli:            cli,
		container:      containerName,
		defaultTimeout: defaultTimeout,
	}
}

// Close releases the daemon connection.
func (d *DockerExecutor) Close() error {
	if c, ok := d.cli.(*client.Client); ok {
		return c.Close()
	}
	return nil
}

// Execute runs inv inside the runtime container. The command is wrapped in
// timeout(1) so that it is terminated inside the container when the timeout
// expires; the API call itself is bounded a little later as a backstop.
// Once the exec is created, cancelling ctx no longer affects it.
func (d *DockerExecutor) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("exec in %s: %w", d.container, err)
	}
	if err := d.ensureRunning(ctx); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	cmd := wrapWithTimeout(timeout, inv.Command, inv.Args)
	d.logger.Debug().Str("command", inv.Command).Strs("args", inv.Args).Dur("timeout", timeout).Msg("exec in runtime container")

	execCtx, cancel := context.WithTimeout(ctx, timeout+killGrace)
	defer cancel()

	start := time.Now()
	execID, err := d.cli.ContainerExecCreate(execCtx, d.container, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   inv.WorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, d.execError(ctx, "exec create", err)
	}

	resp, err := d.cli.ContainerExecAttach(execCtx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, d.execError(ctx, "exec attach", err)
	}
	defer resp.Close()

	// Both streams go to the same buffer so the output keeps its
	// interleaving as closely as the multiplexed stream allows.
	var output bytes.Buffer
	_, copyErr := stdcopy.StdCopy(&output, &output, resp.Reader)
	elapsed := time.Since(start)

	if copyErr != nil {
		if ctx.Err() == nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			d.logger.Warn().Str("command", inv.Command).Dur("timeout", timeout).Msg("exec stream exceeded deadline")
			return timedOutResult(output.String(), timeout, elapsed), nil
		}
		return nil, d.execError(ctx, "exec read output", copyErr)
	}

	inspect, err := d.cli.ContainerExecInspect(execCtx, execID.ID)
	if err != nil {
		return nil, d.execError(ctx, "exec inspect", err)
	}

	if isTimeoutExit(inspect.ExitCode) && elapsed >= timeout {
		return timedOutResult(output.String(), timeout, elapsed), nil
	}

	return &Result{
		ExitCode: inspect.ExitCode,
		Output:   output.String(),
		Duration: elapsed,
	}, nil
}

// ensureRunning starts the runtime container when it exists but is stopped.
func (d *DockerExecutor) ensureRunning(ctx context.Context) error {
	info, err := d.cli.ContainerInspect(ctx, d.container)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return fmt.Errorf("%w: container %s not found", ErrInfrastructure, d.container)
		}
		return fmt.Errorf("%w: inspect container %s: %w", ErrInfrastructure, d.container, err)
	}

	if info.ContainerJSONBase != nil && info.State != nil && info.State.Running {
		return nil
	}

	d.logger.Warn().Str("container", d.container).Msg("runtime container not running, starting it")
	if err := d.cli.ContainerStart(ctx, d.container, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: start container %s: %w", ErrInfrastructure, d.container, err)
	}
	return nil
}

// RunningContainers counts running containers on the daemon.
func (d *DockerExecutor) RunningContainers(ctx context.Context) (int, error) {
	list, err := d.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("%w: list containers: %w", ErrInfrastructure, err)
	}
	return len(list), nil
}

func (d *DockerExecutor) execError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s in %s: %w", op, d.container, ctxErr)
	}
	return fmt.Errorf("%w: %s in %s: %w", ErrInfrastructure, op, d.container, err)
}

func wrapWithTimeout(timeout time.Duration, command string, args []string) []string {
	secs := int64(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	cmd := make([]string, 0, len(args)+5)
	cmd = append(cmd,
		"timeout",
		"--kill-after="+strconv.FormatInt(int64(killGrace/time.Second), 10)+"s",
		strconv.FormatInt(secs, 10)+"s",
		command,
	)
	return append(cmd, args...)
}

func isTimeoutExit(code int) bool {
	// 124: timed out and the command exited on SIGTERM.
	// 137: it ignored SIGTERM and was killed after the grace period.
	return code == TimeoutExitCode || code == 128+9
}
