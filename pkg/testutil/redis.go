package testutil

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisImage is the Redis image integration tests run against.
const RedisImage = "redis:7-alpine"

// StartRedis starts a Redis server and returns its redis:// connection string.
func StartRedis(t *testing.T) string {
	t.Helper()
	RequireIntegration(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, RedisImage,
		testcontainers.WithWaitStrategy(readyLog("Ready to accept connections")),
	)
	if err != nil {
		t.Fatalf("start %s container: %v", RedisImage, err)
	}
	terminateOnCleanup(t, container)

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	return url
}
