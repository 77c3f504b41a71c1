package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

// GetMongoURI returns the URI of a shared MongoDB container. The test is
// skipped in -short mode or when the container cannot be started.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	requireIntegration(t, "mongo")

	mongoOnce.Do(func() {
		mongoURI, mongoErr = startMongo()
	})
	if mongoErr != nil {
		t.Skipf("skipping mongo tests: %v", mongoErr)
	}
	return mongoURI
}

func startMongo() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	c, err := run(ctx, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp").WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return "", err
	}

	addr, err := endpoint(ctx, c, "27017/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		return "", err
	}
	return "mongodb://" + addr, nil
}
