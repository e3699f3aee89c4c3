package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
)

const (
	DefaultImage         = "postgres:17-alpine"
	DefaultContainerName = "duework-postgres"
	DefaultPort          = "5433"
	DefaultDatabase      = "duework"
	DefaultUser          = "duework"
	DefaultPassword      = "duework"
	ContainerPort        = "5432/tcp"
	DataDir              = "/var/lib/postgresql/data"
	Label                = "duework-postgres"
)

// ContainerStatus represents the state of the Postgres container.
type ContainerStatus string

const (
	StatusContainerRunning  ContainerStatus = "running"
	StatusContainerStopped  ContainerStatus = "stopped"
	StatusContainerNotFound ContainerStatus = "not_found"
	StatusContainerStarting ContainerStatus = "starting"
)

// DockerManager manages the local-dev Postgres container lifecycle.
type DockerManager struct {
	cli           *client.Client
	containerName string
	imageName     string
	dataPath      string // host path for data persistence
	hostPort      string
	database      string
	user          string
	password      string
	labels        map[string]string
}

// DockerConfig holds configuration for the Docker manager.
type DockerConfig struct {
	ContainerName string
	Image         string
	DataPath      string
	HostPort      string
	Database      string
	User          string
	Password      string
	Labels        map[string]string // optional labels (used for test cleanup)
}

// NewDockerManager creates a new Docker manager for the local Postgres.
func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if cfg.ContainerName == "" {
		cfg.ContainerName = DefaultContainerName
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.HostPort == "" {
		cfg.HostPort = DefaultPort
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.User == "" {
		cfg.User = DefaultUser
	}
	if cfg.Password == "" {
		cfg.Password = DefaultPassword
	}

	labels := map[string]string{Label: "true"}
	for k, v := range cfg.Labels {
		labels[k] = v
	}

	return &DockerManager{
		cli:           cli,
		containerName: cfg.ContainerName,
		imageName:     cfg.Image,
		dataPath:      cfg.DataPath,
		hostPort:      cfg.HostPort,
		database:      cfg.Database,
		user:          cfg.User,
		password:      cfg.Password,
		labels:        labels,
	}, nil
}

// LocalDSN returns the connection string for the Docker-managed local
// Postgres without requiring a docker client.
func LocalDSN(port string) string {
	if port == "" {
		port = DefaultPort
	}
	return fmt.Sprintf("postgres://%s:%s@localhost:%s/%s?sslmode=disable",
		DefaultUser, DefaultPassword, port, DefaultDatabase)
}

// DSN returns the connection string for the managed Postgres.
func (m *DockerManager) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@localhost:%s/%s?sslmode=disable",
		m.user, m.password, m.hostPort, m.database)
}

// Start ensures the Postgres container is running.
func (m *DockerManager) Start(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}

	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}

	switch status {
	case StatusContainerRunning:
		return nil
	case StatusContainerStopped:
		if err := m.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing container: %w", err)
		}
		return m.waitForReady(ctx, 30*time.Second)
	case StatusContainerNotFound:
		return m.createAndStart(ctx)
	default:
		return fmt.Errorf("container in unexpected state: %s", status)
	}
}

// Stop stops the Postgres container.
func (m *DockerManager) Stop(ctx context.Context) error {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}

	if status == StatusContainerNotFound {
		return nil
	}

	timeout := 10
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	return nil
}

// Remove stops and removes the Postgres container.
func (m *DockerManager) Remove(ctx context.Context) error {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}

	if status == StatusContainerNotFound {
		return nil
	}

	if status == StatusContainerRunning {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}

	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

// Status returns the current status of the Postgres container.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	status, _, err := m.getContainerStatus(ctx)
	return status, err
}

// Close closes the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// createAndStart creates and starts a new Postgres container.
func (m *DockerManager) createAndStart(ctx context.Context) error {
	if err := m.ensureImage(ctx); err != nil {
		return err
	}

	containerConfig := &container.Config{
		Image: m.imageName,
		Env: []string{
			"POSTGRES_DB=" + m.database,
			"POSTGRES_USER=" + m.user,
			"POSTGRES_PASSWORD=" + m.password,
		},
		Labels: m.labels,
		ExposedPorts: nat.PortSet{
			ContainerPort: struct{}{},
		},
		Healthcheck: &container.HealthConfig{
			Test:        []string{"CMD-SHELL", fmt.Sprintf("pg_isready -U %s -d %s", m.user, m.database)},
			Interval:    2 * time.Second,
			Timeout:     5 * time.Second,
			Retries:     10,
			StartPeriod: 5 * time.Second,
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: m.hostPort},
			},
		},
	}

	if m.dataPath != "" {
		hostConfig.Mounts = []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: m.dataPath,
				Target: DataDir,
			},
		}
	}

	resp, err := m.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, m.containerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}

	return m.waitForReady(ctx, 30*time.Second)
}

// getContainerStatus returns the status and ID of the container.
func (m *DockerManager) getContainerStatus(ctx context.Context) (ContainerStatus, string, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", m.containerName)

	containers, err := m.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to list containers: %w", err)
	}

	if len(containers) == 0 {
		return StatusContainerNotFound, "", nil
	}

	c := containers[0]
	switch c.State {
	case "running":
		return StatusContainerRunning, c.ID, nil
	case "exited", "dead":
		return StatusContainerStopped, c.ID, nil
	case "created", "restarting":
		return StatusContainerStarting, c.ID, nil
	default:
		return ContainerStatus(c.State), c.ID, nil
	}
}

// waitForReady polls with a real connection until Postgres accepts queries.
// pg_isready inside the container can pass before the port mapping does.
func (m *DockerManager) waitForReady(ctx context.Context, timeout time.Duration) error {
	return retry.Do(
		func() error {
			connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()

			conn, err := pgx.Connect(connCtx, m.DSN())
			if err != nil {
				return err
			}
			defer conn.Close(connCtx)
			return conn.Ping(connCtx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(timeout.Seconds())),
		retry.Delay(1*time.Second),
	)
}

// ensureImage pulls the Postgres image if not present.
func (m *DockerManager) ensureImage(ctx context.Context) error {
	_, err := m.cli.ImageInspect(ctx, m.imageName)
	if err == nil {
		return nil
	}

	reader, err := m.cli.ImagePull(ctx, m.imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}
