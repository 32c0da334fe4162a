package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordsOnOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveUpstream("submit", "2xx", 0.2)
	m.ObserveUpstream("submit", "timeout", 180)
	m.IncProxyError("TimeoutError")
	m.IncIAPVerification("verified")
	m.IncAdminSession("dev_token")
	m.IncAdminFallbackServed()
	m.SetBreakerState("admin-list", 1)
	m.SetFallbackStored(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("submit", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProxyErrors.WithLabelValues("TimeoutError")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdminFallbackServed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("admin-list")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FallbackStored))
	assert.Equal(t, 1, testutil.CollectAndCount(m.UpstreamLatency))
}

func TestNew_TwoRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
