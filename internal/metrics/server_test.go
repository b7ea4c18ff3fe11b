package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/robalyx/chronicle/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, handler http.Handler, path string) (int, []byte) {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("all healthy", func(t *testing.T) {
		t.Parallel()

		handler := metrics.NewHandler(map[string]metrics.HealthCheck{"postgres": ok, "redis": ok})
		code, body := get(t, handler, "/healthz")

		var report metrics.HealthReport
		require.NoError(t, sonic.Unmarshal(body, &report))

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", report.Status)
		assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, report.Checks)
	})

	t.Run("dependency down", func(t *testing.T) {
		t.Parallel()

		handler := metrics.NewHandler(map[string]metrics.HealthCheck{"postgres": ok, "redis": down})
		code, body := get(t, handler, "/healthz")

		var report metrics.HealthReport
		require.NoError(t, sonic.Unmarshal(body, &report))

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", report.Status)
		assert.Equal(t, "connection refused", report.Checks["redis"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	handler := metrics.NewHandler(nil)

	// Serve one request first so the request counter has a sample
	get(t, handler, "/healthz")

	code, body := get(t, handler, "/metrics")

	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "chronicle_http_requests_total")
}
