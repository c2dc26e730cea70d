package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory
	cfg.BcryptCost = 4
	cfg.ShutdownTimeout = time.Second
	cfg.OutboxPollInterval = 10 * time.Millisecond
	return cfg
}

// startRun запускает Run в фоне; остановка и ожидание выхода регистрируются в t.Cleanup.
func startRun(t *testing.T, cfg Config) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Error("Run did not stop after cancel")
		}
	})
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, Run(ctx, testRunConfig(t)), context.DeadlineExceeded)
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.StorageDriver = "invalid-driver"

	assert.ErrorContains(t, Run(context.Background(), cfg), "unsupported storage driver")
}

func TestRun_ServesAPIWithBootstrapAdmin(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.AdminUsername = "root"
	cfg.AdminPassword = "rootpass"
	startRun(t, cfg)

	login := func(password string) int {
		body := fmt.Sprintf(`{"username":"root","password":%q}`, password)
		resp, err := http.Post("http://"+cfg.HTTPAddr+"/api/v1/auth/login", "application/json", strings.NewReader(body))
		if err != nil {
			return 0
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	require.Eventually(t, func() bool { return login("rootpass") != 0 }, 3*time.Second, 50*time.Millisecond, "api did not start")
	assert.Equal(t, http.StatusOK, login("rootpass"))
	assert.Equal(t, http.StatusUnauthorized, login("wrong-pass"))
}

func TestShutdownOutboxWorker(t *testing.T) {
	logger := discardLogger()

	cancelCalled := false
	done := make(chan struct{})
	close(done)
	shutdownOutboxWorker(func() { cancelCalled = true }, done, logger)
	assert.True(t, cancelCalled)

	assert.NotPanics(t, func() { shutdownOutboxWorker(nil, nil, logger) })
}
