package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/campus-key-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP API,
// the transition engine, and the realtime channel.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	connections     prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
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

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "key_transitions_total",
		Help: "Key state transitions by action and result",
	}, []string{"action", "result"})

	tokensIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handoff_tokens_issued_total",
		Help: "Handoff tokens issued by kind",
	}, []string{"kind"})

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_published_total",
		Help: "Key events published on the fan-out channel",
	}, []string{"action"})

	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Currently connected websocket sessions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitions, tokensIssued, eventsPublished, connections, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitions:     transitions,
		tokensIssued:    tokensIssued,
		eventsPublished: eventsPublished,
		connections:     connections,
	}
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

// ObserveKeyTransition counts a transition attempt by action and outcome.
func (m *MetricsService) ObserveKeyTransition(action models.EventAction, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.transitions.WithLabelValues(string(action), result).Inc()
}

// ObserveTokenIssued counts an issued handoff token by kind.
func (m *MetricsService) ObserveTokenIssued(kind models.HandoffKind) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(string(kind)).Inc()
}

// ObserveEventPublished counts a published realtime event.
func (m *MetricsService) ObserveEventPublished(action models.EventAction) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(string(action)).Inc()
}

// SetRealtimeConnections tracks the connected websocket session count.
func (m *MetricsService) SetRealtimeConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}
