package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "license"

// Manager owns a private registry and the service's counters
type Manager struct {
	registry *prometheus.Registry

	tokensIssued     *prometheus.CounterVec
	activations      *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	heartbeats       prometheus.Counter
	advisoryFailures *prometheus.CounterVec
	authFailures     *prometheus.CounterVec
}

func NewManager() *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "License tokens minted, by operation.",
		}, []string{"operation"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Activation attempts, by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Accepted heartbeats.",
		}),
		advisoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_failures_total",
			Help:      "Advisory lookups that failed and were dropped, by source.",
		}, []string{"source"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected credentials, by error code.",
		}, []string{"code"}),
	}

	registry.MustRegister(
		m.tokensIssued,
		m.activations,
		m.rateLimited,
		m.heartbeats,
		m.advisoryFailures,
		m.authFailures,
	)

	return m
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) TokenIssued(operation string) {
	m.tokensIssued.WithLabelValues(operation).Inc()
}

func (m *Manager) Activation(result string) {
	m.activations.WithLabelValues(result).Inc()
}

func (m *Manager) RateLimited(route string) {
	m.rateLimited.WithLabelValues(route).Inc()
}

func (m *Manager) Heartbeat() {
	m.heartbeats.Inc()
}

func (m *Manager) AdvisoryFailed(source string) {
	m.advisoryFailures.WithLabelValues(source).Inc()
}

func (m *Manager) AuthFailed(code string) {
	m.authFailures.WithLabelValues(code).Inc()
}
