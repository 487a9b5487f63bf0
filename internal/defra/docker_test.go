package defra_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackzampolin/distill/internal/defra"
	"github.com/jackzampolin/distill/internal/testutil"
)

// TestDockerManagerLifecycle exercises the full container lifecycle
// against a real Docker daemon. Gated behind DISTILL_TEST_DOCKER.
func TestDockerManagerLifecycle(t *testing.T) {
	testutil.RequireDocker(t)
	_ = testutil.DockerClient(t)

	port, err := testutil.FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort: %v", err)
	}

	mgr, err := defra.NewDockerManager(defra.DockerConfig{
		ContainerName: testutil.UniqueContainerName(t, "defra"),
		HostPort:      port,
		DataPath:      t.TempDir(),
		Labels:        testutil.ContainerLabels(t),
	})
	if err != nil {
		t.Fatalf("NewDockerManager: %v", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	status, err := mgr.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != defra.StatusRunning {
		t.Fatalf("status = %s, want running", status)
	}

	client := defra.NewClient(mgr.URL())
	if err := client.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	if err := mgr.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	status, err = mgr.Status(ctx)
	if err != nil {
		t.Fatalf("Status after stop: %v", err)
	}
	if status != defra.StatusStopped {
		t.Errorf("status after stop = %s, want stopped", status)
	}
}
