package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("test")

	m.ObservePriceRefresh("primary", 20*time.Millisecond)
	m.ObservePriceRefresh("primary", 10*time.Millisecond)
	m.ObservePurchase("token", "success")
	m.AddContributed(150)
	m.AddContributed(-1)
	m.SetActiveSessions(3)
	m.ObserveRequest("GET", 429, time.Millisecond)
	m.ObserveTransition("token", "approving")
	m.ObserveTransition("token", "confirming")
	m.ObserveTransition("token", "confirming")
	m.SetRaised(2492463.99)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.priceRefreshes.WithLabelValues("primary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.purchases.WithLabelValues("token", "success")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.contributedValue))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("token", "approving")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("token", "confirming")))
	assert.Equal(t, 2492463.99, testutil.ToFloat64(m.raised))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePriceRefresh("secondary", time.Second)
		m.ObservePurchase("native", "error")
		m.AddContributed(1)
		m.SetActiveSessions(1)
		m.ObserveRequest("POST", 200, time.Second)
		m.ObserveTransition("native", "confirming")
		m.SetRaised(1)
		_ = m.Handler()
	})
	assert.Nil(t, m.Registry())
}
