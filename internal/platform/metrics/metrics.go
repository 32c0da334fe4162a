package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application's Prometheus collectors.
type Metrics struct {
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	ProxyErrors      *prometheus.CounterVec

	IAPVerifications *prometheus.CounterVec
	AdminSessions    *prometheus.CounterVec

	AdminFallbackServed prometheus.Counter
	BreakerState        *prometheus.GaugeVec
	FallbackStored      prometheus.Gauge
}

// New registers the collectors on reg (the default registry when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		UpstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_upstream_requests_total",
			Help: "Calls to the upstream API by operation and outcome (status class or transport error kind)",
		}, []string{"operation", "outcome"}),
		UpstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_upstream_latency_seconds",
			Help:    "Upstream call latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		}, []string{"operation"}),
		ProxyErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_proxy_errors_total",
			Help: "Synthesized proxy error envelopes by error kind",
		}, []string{"kind"}),
		IAPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_iap_verifications_total",
			Help: "IAP assertion checks by result",
		}, []string{"result"}),
		AdminSessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_admin_sessions_total",
			Help: "Requests admitted by the admin gate, by admission mode",
		}, []string{"mode"}),
		AdminFallbackServed: f.NewCounter(prometheus.CounterOpts{
			Name: "intake_admin_fallback_served_total",
			Help: "Admin listings served from the local fallback store",
		}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "intake_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"name"}),
		FallbackStored: f.NewGauge(prometheus.GaugeOpts{
			Name: "intake_fallback_store_records",
			Help: "Applications held in the local fallback store",
		}),
	}
}

func (m *Metrics) ObserveUpstream(operation, outcome string, seconds float64) {
	m.UpstreamRequests.WithLabelValues(operation, outcome).Inc()
	m.UpstreamLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) IncProxyError(kind string) {
	m.ProxyErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncIAPVerification(result string) {
	m.IAPVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAdminSession(mode string) {
	m.AdminSessions.WithLabelValues(mode).Inc()
}

func (m *Metrics) IncAdminFallbackServed() {
	m.AdminFallbackServed.Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) SetFallbackStored(n int) {
	m.FallbackStored.Set(float64(n))
}
