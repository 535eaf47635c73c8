package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument_RecordsStatusClass(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("test_op", "4xx"))

	h := Instrument("test_op", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("test_op", "4xx")))
	assert.Zero(t, testutil.ToFloat64(InFlight.WithLabelValues("test_op")))
}

func TestMetricsHandler_ExposesCacheMetrics(t *testing.T) {
	SetBuildInfo("test", "deadbeef")
	CacheHits.Add(0)
	CacheEvictions.WithLabelValues("capacity").Add(0)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"fifocache_cache_hits_total",
		"fifocache_cache_evictions_total",
		"fifocache_cache_items",
		"fifocache_build_info",
		"fifocache_uptime_seconds",
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
