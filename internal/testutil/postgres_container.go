package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// GetPostgresDSN returns the DSN of a shared PostgreSQL container. The test
// is skipped in -short mode or when the container cannot be started.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()
	requireIntegration(t, "postgres")

	pgOnce.Do(func() {
		pgDSN, pgErr = startPostgres()
	})
	if pgErr != nil {
		t.Skipf("skipping postgres tests: %v", pgErr)
	}
	return pgDSN
}

func startPostgres() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	c, err := run(ctx, "postgres:16",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("ready to accept connections"),
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://statum:statum@%s:%s/statum_test?sslmode=disable", host, port.Port())
				}).WithQuery("SELECT 1"),
			).WithDeadline(2*time.Minute),
		),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "statum",
			"POSTGRES_PASSWORD": "statum",
			"POSTGRES_DB":       "statum_test",
		}),
	)
	if err != nil {
		return "", err
	}

	addr, err := endpoint(ctx, c, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		return "", err
	}
	return fmt.Sprintf("postgres://statum:statum@%s/statum_test?sslmode=disable", addr), nil
}
