// File: internal/health/server_test.go
package health

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/advbot/internal/config"
	"go.uber.org/zap/zaptest"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestLiveness(t *testing.T) {
	h := New(config.HealthConfig{}, nil, zaptest.NewLogger(t)).Handler()
	for _, path := range []string{"/", "/health"} {
		code, body := get(t, h, path)
		assert.Equal(t, http.StatusOK, code, path)
		assert.Equal(t, "OK", body, path)
	}
	code, _ := get(t, h, "/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatus(t *testing.T) {
	status := func() any {
		return map[string]any{"phase": "cooling_down", "memory_size": 3}
	}
	h := New(config.HealthConfig{}, status, zaptest.NewLogger(t)).Handler()
	code, body := get(t, h, "/status")
	require.Equal(t, http.StatusOK, code)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "cooling_down", got["phase"])
	assert.EqualValues(t, 3, got["memory_size"])
}

func TestListenAndServeStops(t *testing.T) {
	s := New(config.HealthConfig{Addr: "127.0.0.1:0"}, nil, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}

func TestListenAndServeBadAddr(t *testing.T) {
	s := New(config.HealthConfig{Addr: "127.0.0.1:-1"}, nil, zaptest.NewLogger(t))
	err := s.ListenAndServe(context.Background())
	assert.ErrorContains(t, err, "serve health")
}
