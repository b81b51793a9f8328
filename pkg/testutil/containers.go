// Package testutil starts the disposable servers integration tests run against.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// IntegrationEnv forces integration tests to run in CI.
const IntegrationEnv = "INTEGRATION_TESTS"

const startupTimeout = 60 * time.Second

// RequireIntegration skips t in short mode, in CI unless IntegrationEnv is set, and when no
// container runtime answers.
func RequireIntegration(t *testing.T) {
	t.Helper()
	switch {
	case testing.Short():
		t.Skip("integration test skipped in short mode")
	case os.Getenv("CI") != "" && os.Getenv(IntegrationEnv) == "":
		t.Skipf("integration test skipped in CI, set %s=1 to run it", IntegrationEnv)
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// terminateOnCleanup stops container when t finishes.
func terminateOnCleanup(t *testing.T, container testcontainers.Container) {
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate %s container: %v", container.GetContainerID(), err)
		}
	})
}

// readyLog waits for line in the container log.
func readyLog(line string) wait.Strategy {
	return wait.ForLog(line).WithStartupTimeout(startupTimeout)
}

// startGeneric runs req and terminates the container when t finishes.
func startGeneric(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	RequireIntegration(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s container: %v", req.Image, err)
	}
	terminateOnCleanup(t, container)
	return container
}
