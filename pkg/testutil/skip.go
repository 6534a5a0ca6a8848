package testutil

import (
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// SkipContainersEnv disables every container-backed test when set to a non-empty value.
const SkipContainersEnv = "TASKMANAGER_SKIP_CONTAINERS"

// RequireContainers skips container-backed tests in short mode, when
// SkipContainersEnv is set, or when no Docker daemon answers.
func RequireContainers(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	if os.Getenv(SkipContainersEnv) != "" {
		t.Skipf("skipping container-backed test (%s is set)", SkipContainersEnv)
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}
