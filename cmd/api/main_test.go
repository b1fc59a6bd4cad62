package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/dataset-search-api/config"
	"go.uber.org/zap/zaptest"
)

func TestInitLogger(t *testing.T) {
	t.Run("json logger", func(t *testing.T) {
		cfg := testConfig(t)

		logger, err := initLogger(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer func() { _ = logger.Sync() }()
	})

	t.Run("console logger", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Observability.LogLevel = "debug"
		cfg.Observability.LogFormat = "console"

		logger, err := initLogger(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Observability.LogLevel = "invalid"

		logger, err := initLogger(cfg)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestNewServer(t *testing.T) {
	cfg := testConfig(t)
	srv := newServer(cfg, http.NotFoundHandler())

	assert.Equal(t, fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port), srv.Addr)
	assert.Equal(t, 30*time.Second, srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, srv.WriteTimeout)
}

func TestServe(t *testing.T) {
	t.Run("graceful shutdown on cancel", func(t *testing.T) {
		cfg := testConfig(t)
		srv := newServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- serve(ctx, srv, cfg, zaptest.NewLogger(t)) }()

		require.Eventually(t, func() bool {
			resp, err := http.Get("http://" + srv.Addr)
			if err != nil {
				return false
			}
			_ = resp.Body.Close()
			return resp.StatusCode == http.StatusNoContent
		}, 2*time.Second, 20*time.Millisecond)

		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
	})

	t.Run("listen failure is returned", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer listener.Close()

		cfg := testConfig(t)
		cfg.Server.Port = listener.Addr().(*net.TCPAddr).Port
		srv := newServer(cfg, http.NotFoundHandler())

		err = serve(context.Background(), srv, cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "server error")
	})
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            freePort(t),
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "error",
			LogFormat: "json",
		},
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}
