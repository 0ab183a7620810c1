package cache

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestRedis starts a Redis container. Skips when Docker is not available.
func setupTestRedis(t *testing.T) (*Redis, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, rdb.Ping(ctx).Err())

	c := NewRedisFromClient(rdb, "test:")
	cleanup := func() {
		_ = c.Close()
		_ = container.Terminate(ctx)
	}
	return c, cleanup
}

func TestRedisCache(t *testing.T) {
	c, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	_, err := c.Get(ctx, "user:1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "user:1", []byte(`{"id":"1"}`), time.Minute))
	got, err := c.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(got))

	require.NoError(t, c.Delete(ctx, "user:1"))
	_, err = c.Get(ctx, "user:1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisCacheTTL(t *testing.T) {
	c, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 100*time.Millisecond))
	assert.Eventually(t, func() bool {
		_, err := c.Get(ctx, "short")
		return err == ErrMiss
	}, 3*time.Second, 50*time.Millisecond)
}
