package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Pool manages pre-warmed containers for one runtime.
//
// A container is used exactly once: Execute takes it out of the pool and
// removes it afterwards, and the manager goroutine creates a replacement.
type Pool struct {
	cli        *client.Client
	config     Config
	runtime    Runtime
	logger     *slog.Logger
	containers chan string
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewPool initializes a pool for rt. It does nothing until Start.
func NewPool(cli *client.Client, cfg Config, rt Runtime, logger *slog.Logger) *Pool {
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	return &Pool{
		cli:        cli,
		config:     cfg,
		runtime:    rt,
		logger:     logger.With(slog.String("image", rt.Image)),
		containers: make(chan string, size),
		done:       make(chan struct{}),
	}
}

// Start begins filling the pool in the background.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting docker container pool manager", slog.Int("poolSize", cap(p.containers)))
		p.wg.Add(1)
		go p.manager()
	})
}

// Stop shuts down the manager and removes all pre-warmed containers.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down docker container pool")
		close(p.done)
		p.wg.Wait()

		for {
			select {
			case id := <-p.containers:
				p.removeContainer(id)
			default:
				return
			}
		}
	})
}

// GetContainer returns a ready container ID, blocking until one is available
// or ctx is canceled.
func (p *Pool) GetContainer(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// manager keeps the pool at capacity.
func (p *Pool) manager() {
	defer p.wg.Done()

	for {
		if len(p.containers) >= cap(p.containers) {
			if !p.wait(100 * time.Millisecond) {
				return
			}
			continue
		}

		id, err := p.createContainer()
		if err != nil {
			p.logger.Error("failed to create pre-warmed container", slog.String("error", err.Error()))
			if !p.wait(time.Second) {
				return
			}
			continue
		}

		select {
		case p.containers <- id:
		case <-p.done:
			p.removeContainer(id)
			return
		}
	}
}

// wait sleeps for d and reports false if the pool was stopped meanwhile.
func (p *Pool) wait(d time.Duration) bool {
	select {
	case <-p.done:
		return false
	case <-time.After(d):
		return true
	}
}

// createContainer starts an idle container running `sleep infinity`. Code is
// later run inside it with docker exec.
func (p *Pool) createContainer() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   p.config.MemoryLimit,
			NanoCPUs: int64(p.config.CPULimit * 1e9),
		},
		AutoRemove:     false,
		ReadonlyRootfs: true,
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image:     p.runtime.Image,
		Cmd:       []string{"sleep", "infinity"},
		Tty:       false,
		OpenStdin: true,
		User:      "nobody",
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return "", fmt.Errorf("ContainerStart failed: %w", err)
	}

	return resp.ID, nil
}

// removeContainer force removes a container by ID.
func (p *Pool) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Error("failed to remove container", slog.String("id", id), slog.String("error", err.Error()))
	}
}
