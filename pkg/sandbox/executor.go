// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	relayconfig "github.com/teradata-labs/relay/pkg/config"
)

// Executor owns the Docker client and the container lifecycle. One
// container per PTC session; the harness process is started per Run via
// docker exec.
type Executor struct {
	dockerClient *client.Client
	cfg          relayconfig.PTCConfig
	logger       *zap.Logger

	mu         sync.Mutex
	imageReady bool
	pullErr    error
}

// NewExecutor creates an executor and verifies the Docker daemon is
// reachable.
func NewExecutor(ctx context.Context, cfg relayconfig.PTCConfig, logger *zap.Logger) (*Executor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	host := detectDockerHost()
	logger.Info("creating sandbox executor", zap.String("docker_host", host))

	dockerClient, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := dockerClient.Ping(ctx); err != nil {
		dockerClient.Close()
		return nil, fmt.Errorf("failed to ping Docker daemon: %w", err)
	}

	return &Executor{
		dockerClient: dockerClient,
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// detectDockerHost resolves the daemon endpoint: DOCKER_HOST, then known
// socket locations, then the standard path.
func detectDockerHost() string {
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return host
	}
	candidates := []string{
		"/var/run/docker.sock",
		os.Getenv("HOME") + "/.docker/run/docker.sock",
		os.Getenv("HOME") + "/.colima/default/docker.sock",
	}
	for _, sock := range candidates {
		if _, err := os.Stat(sock); err == nil {
			return "unix://" + sock
		}
	}
	return "unix:///var/run/docker.sock"
}

// Ping reports whether the Docker daemon is reachable.
func (e *Executor) Ping(ctx context.Context) error {
	_, err := e.dockerClient.Ping(ctx)
	return err
}

// EnsureImage pulls the sandbox image if it is not present locally. The
// outcome is cached; health checks read it through ImageStatus.
func (e *Executor) EnsureImage(ctx context.Context) error {
	e.mu.Lock()
	if e.imageReady {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	img := e.cfg.Image
	list, err := e.dockerClient.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", img)),
	})
	if err == nil && len(list) > 0 {
		e.setImageStatus(true, nil)
		return nil
	}

	e.logger.Info("pulling sandbox image", zap.String("image", img))
	reader, err := e.dockerClient.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		e.setImageStatus(false, err)
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		e.setImageStatus(false, err)
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}

	e.logger.Info("sandbox image ready", zap.String("image", img))
	e.setImageStatus(true, nil)
	return nil
}

func (e *Executor) setImageStatus(ready bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.imageReady = ready
	e.pullErr = err
}

// ImageStatus reports the cached image readiness and the last pull error.
func (e *Executor) ImageStatus() (ready bool, pullErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.imageReady, e.pullErr
}

// CreateContainer creates and starts a session container. The container
// idles on sleep so exec sessions can attach to it repeatedly.
func (e *Executor) CreateContainer(ctx context.Context, name string) (string, error) {
	if err := e.EnsureImage(ctx); err != nil {
		return "", err
	}

	containerConfig := &container.Config{
		Image:      e.cfg.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: e.cfg.Workspace,
		Env:        []string{"PYTHONUNBUFFERED=1"},
		Tty:        false,
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory: e.cfg.MemoryLimitMB * 1024 * 1024,
		},
		AutoRemove:  false,
		NetworkMode: "bridge",
	}
	if e.cfg.NetworkDisabled {
		hostConfig.NetworkMode = network.NetworkNone
	}

	resp, err := e.dockerClient.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	if err := e.dockerClient.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = e.dockerClient.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	e.logger.Info("session container started",
		zap.String("name", name),
		zap.String("container_id", resp.ID),
	)
	return resp.ID, nil
}

// RemoveContainer force-removes a session container.
func (e *Executor) RemoveContainer(ctx context.Context, containerID string) error {
	err := e.dockerClient.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Execute starts the harness in the session container with the given code
// and callable tool names, and returns the Run carrying its event stream.
func (e *Executor) Execute(ctx context.Context, containerID, code string, toolNames []string) (*Run, error) {
	tools, err := json.Marshal(toolNames)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool names: %w", err)
	}

	execConfig := container.ExecOptions{
		Cmd: []string{"python3", "-c", harnessSource},
		Env: []string{
			"RELAY_CODE=" + base64.StdEncoding.EncodeToString([]byte(code)),
			"RELAY_TOOLS=" + string(tools),
		},
		WorkingDir:   e.cfg.Workspace,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}

	execID, err := e.dockerClient.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := e.dockerClient.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}

	return newRun(ctx, attachResp, e.logger.With(zap.String("exec_id", execID.ID))), nil
}

// Close releases the Docker client.
func (e *Executor) Close() error {
	return e.dockerClient.Close()
}
