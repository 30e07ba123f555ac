package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics holds the service's prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	priceRefreshes   *prometheus.CounterVec
	priceDuration    prometheus.Histogram
	purchases        *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	raised           prometheus.Gauge
	contributedValue prometheus.Counter
	activeSessions   prometheus.Gauge
	requests         *prometheus.CounterVec
	durations        *prometheus.HistogramVec
}

// NewMetrics registers all collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "presale"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		priceRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_refresh_total",
			Help:      "Price refresh cycles by resulting snapshot source.",
		}, []string{"source"}),
		priceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "price_refresh_duration_seconds",
			Help:      "Duration of price refresh cycles in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_attempts_total",
			Help:      "Purchase attempts by currency kind and terminal status.",
		}, []string{"kind", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_transitions_total",
			Help:      "Purchase state machine entries by currency kind and entered status.",
		}, []string{"kind", "status"}),
		raised: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "raised_effective",
			Help:      "Effective raised total last observed by a session, on-chain when available.",
		}),
		contributedValue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contributed_value_total",
			Help:      "Quote-currency value of successful purchases.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		m.priceRefreshes,
		m.priceDuration,
		m.purchases,
		m.transitions,
		m.raised,
		m.contributedValue,
		m.activeSessions,
		m.requests,
		m.durations,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() fasthttp.RequestHandler {
	if m == nil {
		return func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusNotFound) }
	}
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) ObservePriceRefresh(source string, took time.Duration) {
	if m == nil {
		return
	}
	m.priceRefreshes.WithLabelValues(source).Inc()
	m.priceDuration.Observe(took.Seconds())
}

func (m *Metrics) ObservePurchase(kind, status string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(kind, status).Inc()
}

// ObserveTransition counts an entry into a purchase status.
func (m *Metrics) ObserveTransition(kind, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) SetRaised(value float64) {
	if m == nil {
		return
	}
	m.raised.Set(value)
}

func (m *Metrics) AddContributed(value float64) {
	if m == nil || value <= 0 {
		return
	}
	m.contributedValue.Add(value)
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) ObserveRequest(method string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, statusClass(status)).Inc()
	m.durations.WithLabelValues(method).Observe(took.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
