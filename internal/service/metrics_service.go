package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the claim desk.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	ticketsIssued   *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	consumptions    *prometheus.CounterVec
	reveals         *prometheus.CounterVec
	limiterErrors   prometheus.Counter
	notifications   *prometheus.CounterVec
}

// NewMetricsService registers the Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	ticketsIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_tickets_issued_total",
		Help: "Claim tickets issued, labelled by whether an older ticket was superseded",
	}, []string{"superseded"})

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_verifications_total",
		Help: "Claim verification attempts by credential path and result code",
	}, []string{"path", "result"})

	consumptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_consumptions_total",
		Help: "Claim consumption attempts by result",
	}, []string{"result"})

	reveals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_code_reveals_total",
		Help: "Resident code reveal attempts by result",
	}, []string{"result"})

	limiterErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limiter_errors_total",
		Help: "Rate limiter backend failures; requests were allowed through",
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pickup_notifications_total",
		Help: "Pickup notification emails by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, ticketsIssued, verifications, consumptions, reveals,
		limiterErrors, notifications, goroutines, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		ticketsIssued:   ticketsIssued,
		verifications:   verifications,
		consumptions:    consumptions,
		reveals:         reveals,
		limiterErrors:   limiterErrors,
		notifications:   notifications,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// TicketIssued counts an issuance.
func (m *MetricsService) TicketIssued(superseded bool) {
	if m == nil {
		return
	}
	m.ticketsIssued.WithLabelValues(fmt.Sprintf("%t", superseded)).Inc()
}

// Verification counts a verification outcome. result is "ok" or an error code.
func (m *MetricsService) Verification(path, result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(path, result).Inc()
}

// Consumption counts a consumption outcome.
func (m *MetricsService) Consumption(result string) {
	if m == nil {
		return
	}
	m.consumptions.WithLabelValues(result).Inc()
}

// Reveal counts a code reveal outcome.
func (m *MetricsService) Reveal(result string) {
	if m == nil {
		return
	}
	m.reveals.WithLabelValues(result).Inc()
}

// LimiterError counts a rate limiter backend failure.
func (m *MetricsService) LimiterError() {
	if m == nil {
		return
	}
	m.limiterErrors.Inc()
}

// Notification counts a pickup email outcome.
func (m *MetricsService) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}
