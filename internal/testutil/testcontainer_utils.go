package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
)

// startupTimeout bounds container start in slow CI environments.
const startupTimeout = 3 * time.Minute

// requireIntegration skips t in -short mode, where no containers are
// started.
func requireIntegration(t *testing.T, backend string) {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping %s integration test in short mode", backend)
	}
}

// endpoint returns host:port of the container's mapped port, forcing IPv4
// loopback to avoid [::1]:port resolution problems.
func endpoint(ctx context.Context, c testcontainers.Container, port nat.Port) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", fmt.Errorf("container mapped port: %w", err)
	}
	if host == "" || host == "localhost" || host == "::1" {
		host = "127.0.0.1"
	}
	return host + ":" + mapped.Port(), nil
}

// run starts a container, converting a testcontainers panic (e.g. no
// Docker daemon) into an error.
func run(ctx context.Context, image string, opts ...testcontainers.ContainerCustomizer) (c testcontainers.Container, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting %s panicked: %v", image, r)
		}
	}()
	c, err = testcontainers.Run(ctx, image, opts...)
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", strings.Split(image, ":")[0], err)
	}
	return c, nil
}
