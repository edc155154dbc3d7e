package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/manthysbr/skywatch/internal/adapters/astrosource"
	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/manthysbr/skywatch/internal/core/ports"
)

// containerAPI is the subset of the Docker client the analyzer uses.
type containerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// Config selects the astrosource image.
type Config struct {
	Image      string
	Entrypoint []string      // command run inside the image; phase args are appended
	Timeout    time.Duration // per phase; zero means none
}

// Analyzer runs each phase in a throwaway container with the job's input
// directory bind-mounted at the same path.
type Analyzer struct {
	logger *slog.Logger
	cli    containerAPI
	cfg    Config
}

// NewAnalyzer creates a Docker-backed analyzer
func NewAnalyzer(logger *slog.Logger, cfg Config) (*Analyzer, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newAnalyzer(logger, cli, cfg), nil
}

func newAnalyzer(logger *slog.Logger, cli containerAPI, cfg Config) *Analyzer {
	if len(cfg.Entrypoint) == 0 {
		cfg.Entrypoint = []string{"astrosource"}
	}
	return &Analyzer{logger: logger, cli: cli, cfg: cfg}
}

// Ensure Analyzer implements Analyzer
var _ ports.Analyzer = (*Analyzer)(nil)

func (a *Analyzer) RunPhase(ctx context.Context, phase domain.Phase, job domain.Job, log io.Writer) error {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	cmd := append(append([]string(nil), a.cfg.Entrypoint...), astrosource.BuildArgs(phase, job.Params)...)

	cfg := &container.Config{
		Image:        a.cfg.Image,
		Cmd:          cmd,
		Tty:          false,
		AttachStdout: true,
		AttachStderr: true,
		Labels: map[string]string{
			"skywatch.managed": "true",
			"skywatch.job_id":  string(job.ID),
			"skywatch.phase":   string(phase),
		},
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: job.Params.InputDir,
				Target: job.Params.InputDir,
			},
		},
	}
	name := fmt.Sprintf("skywatch-%s-%s", job.ID, phase)

	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if client.IsErrNotFound(err) {
		a.logger.Info("pulling image", "image", a.cfg.Image)
		reader, pullErr := a.cli.ImagePull(ctx, a.cfg.Image, image.PullOptions{})
		if pullErr != nil {
			return fmt.Errorf("failed to pull image %s: %w", a.cfg.Image, pullErr)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
		resp, err = a.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	}
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		if err := a.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			a.logger.Warn("failed to remove container", "container_id", resp.ID, "error", err)
		}
	}()

	// Register the wait before starting so a fast exit is not missed.
	waitCh, errCh := a.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNextExit)

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	logs, err := a.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		return fmt.Errorf("failed to attach logs: %w", err)
	}
	defer logs.Close()
	if _, err := stdcopy.StdCopy(log, log, logs); err != nil {
		a.logger.Warn("log copy interrupted", "container_id", resp.ID, "error", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s interrupted: %w", phase, ctx.Err())
	case err := <-errCh:
		return fmt.Errorf("failed waiting for container: %w", err)
	case res := <-waitCh:
		if res.Error != nil {
			return fmt.Errorf("%s: %s", phase, res.Error.Message)
		}
		if res.StatusCode != 0 {
			return fmt.Errorf("%s exited with code %d", phase, res.StatusCode)
		}
	}
	return nil
}
