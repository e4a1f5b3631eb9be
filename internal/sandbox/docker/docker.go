// Package docker implements sandbox.Engine on the Docker Engine API.
//
// Each Run creates one container with the invocation's name, streams stdin
// in through an attach, demultiplexes stdout and stderr with stdcopy and
// waits for the exit code. Containers are created with AutoRemove, so a
// normal exit leaves nothing behind; Stop covers the timed-out ones.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/gradebox/internal/sandbox"
)

// Engine implements the sandbox.Engine interface using Docker.
type Engine struct {
	cli    client.APIClient
	config Config
	logger *slog.Logger
}

var _ sandbox.Engine = (*Engine)(nil)

// New creates a Docker Engine from the standard DOCKER_* environment.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return newEngine(cli, cfg, logger), nil
}

func newEngine(cli client.APIClient, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		cli:    cli,
		config: cfg,
		logger: logger,
	}
}

// Close releases the docker client.
func (e *Engine) Close() error {
	return e.cli.Close()
}

// Ping checks that the daemon is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// EnsureImages pulls every image so the first request does not pay for it.
func (e *Engine) EnsureImages(ctx context.Context, images ...string) error {
	for _, ref := range images {
		if err := e.pull(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pull(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.PullTimeout)
	defer cancel()

	e.logger.Info("ensuring docker image is available", slog.String("image", ref))
	reader, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	e.logger.Info("docker image is ready", slog.String("image", ref))
	return nil
}

// Run executes one invocation in a new container and waits for it to exit.
func (e *Engine) Run(ctx context.Context, inv sandbox.Invocation) (*sandbox.Outcome, error) {
	start := time.Now()

	resp, err := e.cli.ContainerCreate(ctx, e.containerConfig(inv), e.hostConfig(inv), nil, nil, inv.Name)
	if err != nil {
		if ctx.Err() != nil {
			// The daemon can still finish the create after the call is
			// cancelled, leaving a container that never starts and so is
			// never auto-removed.
			e.remove(inv.Name)
		}
		return nil, fmt.Errorf("ContainerCreate failed: %w", err)
	}

	// Attach before start so no early output is lost.
	attach, err := e.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		e.remove(resp.ID)
		return nil, fmt.Errorf("ContainerAttach failed: %w", err)
	}
	defer attach.Close()

	// Register for the exit before starting; AutoRemove may delete the
	// container before a later wait call could see it.
	waitCh, waitErrCh := e.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNextExit)

	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		e.remove(resp.ID)
		return nil, fmt.Errorf("ContainerStart failed: %w", err)
	}

	go func() {
		_, _ = io.WriteString(attach.Conn, inv.Stdin)
		_ = attach.CloseWrite()
	}()

	var stdout, stderr bytes.Buffer
	copied := make(chan error, 1)
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copied <- err
	}()

	var status container.WaitResponse
	select {
	case status = <-waitCh:
	case err := <-waitErrCh:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ContainerWait failed: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case err := <-copied:
		if err != nil {
			return nil, fmt.Errorf("failed to read container output: %w", err)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if status.Error != nil && status.Error.Message != "" {
		return nil, fmt.Errorf("container exited abnormally: %s", status.Error.Message)
	}

	return &sandbox.Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: int(status.StatusCode),
		Duration: time.Since(start),
	}, nil
}

// Stop terminates the named container. A container that is already gone
// counts as stopped.
func (e *Engine) Stop(ctx context.Context, name string) error {
	grace := int(e.config.StopGrace / time.Second)
	err := e.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &grace})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("ContainerStop %s failed: %w", name, err)
	}

	// Covers containers that were created but never started, which
	// AutoRemove does not reclaim.
	err = e.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !cerrdefs.IsNotFound(err) && !cerrdefs.IsConflict(err) {
		return fmt.Errorf("ContainerRemove %s failed: %w", name, err)
	}
	return nil
}

func (e *Engine) containerConfig(inv sandbox.Invocation) *container.Config {
	return &container.Config{
		Image:           inv.Image,
		Cmd:             inv.Cmd,
		Tty:             false,
		OpenStdin:       true,
		StdinOnce:       true,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: inv.NetworkDisabled,
	}
}

func (e *Engine) hostConfig(inv sandbox.Invocation) *container.HostConfig {
	pidsLimit := e.config.PidsLimit

	hc := &container.HostConfig{
		AutoRemove:     true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		ReadonlyRootfs: true,
		Mounts: []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   inv.Mount.Source,
			Target:   inv.Mount.Target,
			ReadOnly: inv.Mount.ReadOnly,
		}},
		Resources: container.Resources{
			Memory:    inv.MemoryBytes,
			NanoCPUs:  inv.NanoCPUs,
			PidsLimit: &pidsLimit,
		},
	}
	if inv.MemoryBytes > 0 {
		// No swap on top of the memory ceiling
		hc.Resources.MemorySwap = inv.MemoryBytes
	}
	if inv.Scratch != "" {
		hc.Tmpfs = map[string]string{
			inv.Scratch: "rw,nosuid,size=" + e.config.ScratchSize,
		}
	}
	if inv.NetworkDisabled {
		hc.NetworkMode = "none"
	}
	return hc
}

// remove force removes a container by ID or name. It runs on a fresh
// context because callers reach it after their own context is done.
func (e *Engine) remove(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := e.cli.ContainerRemove(ctx, ref, container.RemoveOptions{Force: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		e.logger.Error("failed to remove container", slog.String("container", ref), slog.String("error", err.Error()))
	}
}
