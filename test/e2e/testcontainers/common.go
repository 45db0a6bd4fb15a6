// Package testcontainers starts the databases and broker used by the e2e suites.
package testcontainers

import (
	"context"
	"fmt"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
)

// Endpoint is a started container and the host/port it is reachable on.
type Endpoint struct {
	Container testcontainers.Container
	Host      string
	Port      int
}

// Terminate stops the container. It is safe on a nil endpoint.
func (e *Endpoint) Terminate(ctx context.Context) error {
	if e == nil || e.Container == nil {
		return nil
	}
	return e.Container.Terminate(ctx)
}

// start runs req and resolves the mapped address of port.
func start(ctx context.Context, req testcontainers.ContainerRequest, port string) (*Endpoint, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s container: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &Endpoint{Container: container, Host: host, Port: mapped.Int()}, nil
}
