// internal/metrics/prometheus.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements the storage metrics sink on its own registry so
// several instances can coexist in one process (tests).
type Prometheus struct {
	Latency       *prometheus.HistogramVec
	Errors        *prometheus.CounterVec
	APICalls      *prometheus.CounterVec
	SuccessRate   *prometheus.GaugeVec
	Failovers     *prometheus.CounterVec
	ProviderUp    *prometheus.GaugeVec
	AuditEvents   *prometheus.GaugeVec
	AlertsEmitted *prometheus.CounterVec
	registry      *prometheus.Registry
}

// NewPrometheus creates and registers all metrics under namespace
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "sal"
	}
	registry := prometheus.NewRegistry()

	m := &Prometheus{
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Provider operation latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of provider errors",
			},
			[]string{"provider", "kind"},
		),
		APICalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_calls_total",
				Help:      "Total number of provider API calls",
			},
			[]string{"provider", "operation"},
		),
		SuccessRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_success_rate",
				Help:      "Fraction of successful operations per provider",
			},
			[]string{"provider"},
		),
		Failovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failovers_total",
				Help:      "Total number of storage failovers",
			},
			[]string{"from", "to"},
		),
		ProviderUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_healthy",
				Help:      "1 if the last health check passed",
			},
			[]string{"provider"},
		),
		AuditEvents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "audit_events",
				Help:      "Retained audit events by type",
			},
			[]string{"event_type"},
		),
		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Total number of alerts fired",
			},
			[]string{"severity"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.Latency,
		m.Errors,
		m.APICalls,
		m.SuccessRate,
		m.Failovers,
		m.ProviderUp,
		m.AuditEvents,
		m.AlertsEmitted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveLatency records one operation duration
func (m *Prometheus) ObserveLatency(provider, op string, seconds float64) {
	m.Latency.WithLabelValues(provider, op).Observe(seconds)
}

// RecordError increments the error counter
func (m *Prometheus) RecordError(provider, kind string) {
	m.Errors.WithLabelValues(provider, kind).Inc()
}

// RecordAPICall increments the call counter
func (m *Prometheus) RecordAPICall(provider, op string) {
	m.APICalls.WithLabelValues(provider, op).Inc()
}

// SetSuccessRate sets the provider success rate, clamped to [0,1]
func (m *Prometheus) SetSuccessRate(provider string, rate float64) {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	m.SuccessRate.WithLabelValues(provider).Set(rate)
}

// RecordFailover increments the failover counter
func (m *Prometheus) RecordFailover(from, to string) {
	m.Failovers.WithLabelValues(from, to).Inc()
}

// SetProviderHealth exports a health check result
func (m *Prometheus) SetProviderHealth(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	m.ProviderUp.WithLabelValues(provider).Set(v)
}

// SetAuditEvents exports the retained count for one event type
func (m *Prometheus) SetAuditEvents(eventType string, n int) {
	m.AuditEvents.WithLabelValues(eventType).Set(float64(n))
}

// RecordAlert counts a fired alert
func (m *Prometheus) RecordAlert(severity string) {
	m.AlertsEmitted.WithLabelValues(severity).Inc()
}

// Registry exposes the underlying registry
func (m *Prometheus) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics handler
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
