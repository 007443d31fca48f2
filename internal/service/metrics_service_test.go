package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceObserveGeneration(t *testing.T) {
	m := NewMetricsService()

	m.ObserveGeneration(OutcomeConflicts, 120*time.Millisecond, 10, 1, map[string]int{"no_free_slot": 2, "no_eligible_room": 1})
	m.ObserveGeneration(OutcomeCompleted, 80*time.Millisecond, 5, 0, map[string]int{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeConflicts)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.placements))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.conflicts.WithLabelValues("no_free_slot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.issues))
}

func TestMetricsServiceHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/timetables/generate", http.StatusOK, 15*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="POST",path="/api/v1/timetables/generate",status="200"} 1`)
	assert.Contains(t, body, `timetable_cache_lookups_total{result="hit"} 1`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveGeneration(OutcomeFailed, time.Second, 0, 0, nil)
		m.RecordCacheOperation(false, time.Millisecond)
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
