package infrastructure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/krobus00/realtime-gateway/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewHealthMux(t *testing.T) {
	ready := true
	mux := NewHealthMux(func(context.Context) error {
		if !ready {
			return errors.New("nats disconnected")
		}
		return nil
	})
	server := NewHTTPServer(HTTPServerConfig{Name: "test"}, mux)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ready = false
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTPRecoveryMiddleware(t *testing.T) {
	server := NewHTTPServer(HTTPServerConfig{}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResolveHTTPAddr(t *testing.T) {
	previous := config.Env
	t.Cleanup(func() { config.Env = previous })

	config.Env = nil
	require.Equal(t, defaultHTTPAddr, resolveHTTPAddr("gateway_http"))

	config.Env = &config.EnvConfig{Port: map[string]string{"gateway_http": "9000", "gateway_ops": ":9001"}}
	require.Equal(t, ":9000", resolveHTTPAddr("gateway_http"))
	require.Equal(t, ":9001", resolveHTTPAddr("gateway_ops"))
	require.Equal(t, defaultHTTPAddr, resolveHTTPAddr("missing"))
}
