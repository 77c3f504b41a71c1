package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// GetRedisAddress returns host:port of a shared Redis container. The test
// is skipped in -short mode or when the container cannot be started.
func GetRedisAddress(t *testing.T) string {
	t.Helper()
	requireIntegration(t, "redis")

	redisOnce.Do(func() {
		redisAddr, redisErr = startRedis()
	})
	if redisErr != nil {
		t.Skipf("skipping redis tests: %v", redisErr)
	}
	return redisAddr
}

func startRedis() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	c, err := run(ctx, "redis:7",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		),
	)
	if err != nil {
		return "", err
	}

	addr, err := endpoint(ctx, c, "6379/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		return "", err
	}
	return addr, nil
}
