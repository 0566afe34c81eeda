package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarly/kernel/backend/internal/config"
	"github.com/bazaarly/kernel/backend/internal/database"
	"github.com/bazaarly/kernel/backend/internal/logger"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		HTTPPort:  "0",
		JWTSecret: "server-test-secret",
		Security:  config.SecurityConfig{AutoMigrate: true},
	}
	srv, err := New(database.OpenTestDB(t), cfg)
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)
	return srv
}

func TestNew_HealthAndHeaders(t *testing.T) {
	srv := newTestServer(t)
	t.Cleanup(func() { _ = srv.Kernel.Shutdown(context.Background()) })

	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestNew_NoRoute(t *testing.T) {
	srv := newTestServer(t)
	t.Cleanup(func() { _ = srv.Kernel.Shutdown(context.Background()) })

	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nothing-here", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "route not found")
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_ListenFailureReturnsError(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(false, buf)
	t.Cleanup(func() { logger.Init(false, nil) })

	srv := newTestServer(t)
	srv.cfg.HTTPPort = "-1"

	err := srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, buf.String(), "http server listening")
	assert.NotContains(t, buf.String(), "kernel shutdown")
}
