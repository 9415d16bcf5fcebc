package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ErrContainerTimeout is returned by WaitContainer when the context expires
// before the container exits.
var ErrContainerTimeout = errors.New("container did not finish in time")

// ContainerEngine is the subset of the Docker API used to run one sandboxed
// evaluation.
type ContainerEngine interface {
	EnsureImage(ctx context.Context, imageName string) error
	CreateContainer(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	// WriteStdin sends data to the container's stdin and closes it.
	WriteStdin(ctx context.Context, containerID string, data []byte) error
	WaitContainer(ctx context.Context, containerID string) (int64, error)
	Logs(ctx context.Context, containerID string) (stdout, stderr []byte, err error)
	OOMKilled(ctx context.Context, containerID string) (bool, error)
	KillContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string) error
}

type dockerEngine struct {
	cli *client.Client
}

// NewDockerEngine connects to the Docker daemon configured in the environment
// (DOCKER_HOST and friends).
func NewDockerEngine() (ContainerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &dockerEngine{cli: cli}, nil
}

func (d *dockerEngine) EnsureImage(ctx context.Context, imageName string) error {
	_, err := d.cli.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return err
	}

	reader, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", imageName, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

func (d *dockerEngine) CreateContainer(
	ctx context.Context,
	cfg *container.Config,
	hostCfg *container.HostConfig,
	name string,
) (string, error) {
	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d *dockerEngine) StartContainer(ctx context.Context, containerID string) error {
	return d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
}

func (d *dockerEngine) WriteStdin(ctx context.Context, containerID string, data []byte) error {
	resp, err := d.cli.ContainerAttach(ctx, containerID, container.AttachOptions{Stream: true, Stdin: true})
	if err != nil {
		return fmt.Errorf("attach stdin: %w", err)
	}
	defer resp.Close()

	if _, err := resp.Conn.Write(data); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return resp.CloseWrite()
}

func (d *dockerEngine) WaitContainer(ctx context.Context, containerID string) (int64, error) {
	statusCh, errCh := d.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return -1, ErrContainerTimeout
		}
		return -1, err
	case status := <-statusCh:
		return status.StatusCode, nil
	case <-ctx.Done():
		return -1, ErrContainerTimeout
	}
}

func (d *dockerEngine) Logs(ctx context.Context, containerID string) ([]byte, []byte, error) {
	rc, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return nil, nil, err
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func (d *dockerEngine) OOMKilled(ctx context.Context, containerID string) (bool, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return false, err
	}
	return info.State != nil && info.State.OOMKilled, nil
}

func (d *dockerEngine) KillContainer(ctx context.Context, containerID string) error {
	return d.cli.ContainerKill(ctx, containerID, "SIGKILL")
}

func (d *dockerEngine) RemoveContainer(ctx context.Context, containerID string) error {
	return d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}
