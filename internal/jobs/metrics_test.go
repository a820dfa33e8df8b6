package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("auth:session_sweep").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("auth:session_sweep").End(boom), boom)
	m.AddCleared("auth:session_sweep", 3)
	m.AddCleared("auth:session_sweep", 0)

	body := scrape(t, reg)
	require.Contains(t, body, `billdesk_jobs_total{job="auth:session_sweep",status="success"} 1`)
	require.Contains(t, body, `billdesk_jobs_total{job="auth:session_sweep",status="failure"} 1`)
	require.Contains(t, body, `billdesk_jobs_failures_total{job="auth:session_sweep"} 1`)
	require.Contains(t, body, `billdesk_jobs_cleared_total{job="auth:session_sweep"} 3`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("x").End(nil))
	m.AddCleared("x", 5)
}
