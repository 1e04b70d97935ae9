package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestNewDependencies_InMemoryByDefault(t *testing.T) {
	deps, err := NewDependencies(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.Orders)
	assert.NotNil(t, deps.Notifications)
	assert.NotNil(t, deps.Timeline)
	assert.NotNil(t, deps.Outbox)
	assert.NotNil(t, deps.Idempotency)
	assert.NotNil(t, deps.Locker)
	assert.False(t, deps.HasPersistentStore())
	assert.False(t, deps.HasRedis())

	// In-memory хранилище всегда доступно.
	assert.NoError(t, deps.PingStore(context.Background()))
	assert.NoError(t, deps.PingRedis(context.Background()))
}

func TestRun_StartsAndStopsGracefully(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = freePort(t)
	cfg.MetricsAddr = freePort(t)
	cfg.ReconcileSchedule = "@every 1h"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	// Дожидаемся, пока API начнёт отвечать.
	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get(fmt.Sprintf("http://%s/api/v1/orders?customer_id=probe", cfg.HTTPAddr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	// Служебный сервер тоже поднят.
	resp, err := client.Get(fmt.Sprintf("http://%s/livez", cfg.MetricsAddr))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(fmt.Sprintf("http://%s/healthz", cfg.MetricsAddr))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop after context cancellation")
	}
}
