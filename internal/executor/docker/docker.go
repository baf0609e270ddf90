package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/vinstackcode/internal/executor"
)

// Executor implements executor.Executor with one container pool per language.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pools  map[string]*Pool
}

var _ executor.Executor = (*Executor)(nil)

// New connects to the Docker daemon, pulls every configured image and starts
// the pools.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if len(cfg.Runtimes) == 0 {
		return nil, fmt.Errorf("docker executor: no runtimes configured")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, lang := range cfg.Languages() {
		img := cfg.Runtimes[lang].Image
		if err := pullImage(ctx, cli, img, logger); err != nil {
			cli.Close()
			return nil, err
		}
	}

	exec := &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
		pools:  make(map[string]*Pool, len(cfg.Runtimes)),
	}
	for lang, rt := range cfg.Runtimes {
		pool := NewPool(cli, cfg, rt, logger)
		pool.Start()
		exec.pools[lang] = pool
	}

	return exec, nil
}

func pullImage(ctx context.Context, cli *client.Client, img string, logger *slog.Logger) error {
	logger.Info("ensuring docker image is available", slog.String("image", img))
	reader, err := cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	defer reader.Close()
	// Drain to block until the pull completes.
	_, _ = io.Copy(io.Discard, reader)
	logger.Info("docker image is ready", slog.String("image", img))
	return nil
}

// Close shuts down every pool and the docker client.
func (e *Executor) Close() error {
	for _, p := range e.pools {
		p.Stop()
	}
	return e.cli.Close()
}

// Languages lists the languages this executor can run.
func (e *Executor) Languages() []string {
	return e.config.Languages()
}

// Execute runs req in a fresh container from the language's pool.
//
// The container is removed once the call returns, including after a timeout,
// so a runaway process never outlives its request.
func (e *Executor) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	lang := strings.ToLower(req.Language)
	pool, ok := e.pools[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q", executor.ErrUnsupportedLanguage, req.Language)
	}
	rt := e.config.Runtimes[lang]

	containerID, err := pool.GetContainer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container from pool: %w", err)
	}
	defer pool.removeContainer(containerID)

	return executor.RunWithTimeout(ctx, e.config.Timeout, func(runCtx context.Context) (*executor.Result, error) {
		return e.run(runCtx, containerID, rt, req)
	})
}

func (e *Executor) run(ctx context.Context, containerID string, rt Runtime, req executor.Request) (*executor.Result, error) {
	cmd := append(append([]string{}, rt.Command...), req.Code)

	execResp, err := e.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		AttachStdin:  req.Stdin != "",
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := e.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	if req.Stdin != "" {
		if _, err := io.Copy(attachResp.Conn, strings.NewReader(req.Stdin)); err != nil {
			return nil, fmt.Errorf("failed to write stdin: %w", err)
		}
		if err := attachResp.CloseWrite(); err != nil {
			return nil, fmt.Errorf("failed to close stdin: %w", err)
		}
	}

	var stdout, stderr bytes.Buffer
	copied := make(chan error, 1)
	go func() {
		// stdcopy demultiplexes stdout from stderr.
		_, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		copied <- err
	}()

	select {
	case <-copied:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	inspect, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return &executor.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}
