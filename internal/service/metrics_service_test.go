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

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()
	m.TicketIssued(true)
	m.TicketIssued(false)
	m.Verification("token", "ok")
	m.Verification("code", "TicketNotFound")
	m.Consumption("ok")
	m.Reveal("rate_limited")
	m.LimiterError()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/admin/claim/verify", 200, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticketsIssued.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("code", "TicketNotFound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.limiterErrors))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "claim_verifications_total")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.TicketIssued(true)
	m.Verification("token", "ok")
	m.Notification("sent")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
