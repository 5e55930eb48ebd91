package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the locator service. Every
// instance owns its own prometheus registry so tests never collide on
// duplicate registration.
type Registry struct {
	reg *prometheus.Registry

	// Cache performance
	CacheHits    *prometheus.CounterVec
	CacheMisses  *prometheus.CounterVec
	CacheErrors  *prometheus.CounterVec
	CacheLatency *prometheus.HistogramVec

	// Upstream feeds
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	UpstreamRetries  *prometheus.CounterVec

	// Circuit breakers
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec

	// Call budgets
	BudgetUsed *prometheus.GaugeVec

	// Pricing pipeline
	RateResolutions *prometheus.CounterVec
	RateLatency     prometheus.Histogram
	Calculations    *prometheus.CounterVec

	// Audit trail
	AuditEnqueued    prometheus.Counter
	AuditDropped     prometheus.Counter
	AuditWriteErrors prometheus.Counter
	AuditQueueDepth  prometheus.Gauge

	// HTTP gateway
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates a registry with all locator metrics registered
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_cache_hits_total",
				Help: "Cache hits by key prefix",
			},
			[]string{"prefix"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_cache_misses_total",
				Help: "Cache misses by key prefix",
			},
			[]string{"prefix"},
		),
		CacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_cache_errors_total",
				Help: "Cache operation errors by operation",
			},
			[]string{"op"},
		),
		CacheLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "locator_cache_op_seconds",
				Help:    "Cache operation latency in seconds",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"op"},
		),

		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_upstream_requests_total",
				Help: "Upstream feed calls by feed and result",
			},
			[]string{"feed", "result"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "locator_upstream_seconds",
				Help:    "Upstream feed call latency in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"feed"},
		),
		UpstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_upstream_retries_total",
				Help: "Retry attempts by feed",
			},
			[]string{"feed"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "locator_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"endpoint"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_breaker_transitions_total",
				Help: "Circuit breaker state transitions by endpoint and new state",
			},
			[]string{"endpoint", "to"},
		),

		BudgetUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "locator_budget_used",
				Help: "Upstream calls consumed against the daily budget",
			},
			[]string{"feed"},
		),

		RateResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_rate_resolutions_total",
				Help: "Borrow rate resolutions by outcome",
			},
			[]string{"outcome"},
		),
		RateLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "locator_rate_resolution_seconds",
				Help:    "End-to-end borrow rate resolution latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0},
			},
		),
		Calculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_fee_calculations_total",
				Help: "Fee calculations by result",
			},
			[]string{"result"},
		),

		AuditEnqueued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "locator_audit_enqueued_total",
				Help: "Audit records accepted onto the queue",
			},
		),
		AuditDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "locator_audit_dropped_total",
				Help: "Audit records dropped because the queue was full",
			},
		),
		AuditWriteErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "locator_audit_write_errors_total",
				Help: "Audit sink write failures",
			},
		),
		AuditQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "locator_audit_queue_depth",
				Help: "Audit records currently queued",
			},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locator_http_requests_total",
				Help: "Gateway requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "locator_http_request_seconds",
				Help:    "Gateway request latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"route"},
		),
	}

	r.reg.MustRegister(
		r.CacheHits, r.CacheMisses, r.CacheErrors, r.CacheLatency,
		r.UpstreamRequests, r.UpstreamLatency, r.UpstreamRetries,
		r.BreakerState, r.BreakerTransitions,
		r.BudgetUsed,
		r.RateResolutions, r.RateLatency, r.Calculations,
		r.AuditEnqueued, r.AuditDropped, r.AuditWriteErrors, r.AuditQueueDepth,
		r.HTTPRequests, r.HTTPDuration,
	)

	return r
}

// Gatherer exposes the underlying registry for scraping and snapshots
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns the Prometheus scrape handler for this registry
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveCacheGet records one cache probe with its latency
func (r *Registry) ObserveCacheGet(prefix string, hit bool, d time.Duration) {
	if hit {
		r.CacheHits.WithLabelValues(prefix).Inc()
	} else {
		r.CacheMisses.WithLabelValues(prefix).Inc()
	}
	r.CacheLatency.WithLabelValues("get").Observe(d.Seconds())
}

// ObserveUpstream records one upstream call with its latency
func (r *Registry) ObserveUpstream(feed, result string, d time.Duration) {
	r.UpstreamRequests.WithLabelValues(feed, result).Inc()
	r.UpstreamLatency.WithLabelValues(feed).Observe(d.Seconds())
}

// SetBreakerState mirrors a breaker state change into the gauge
func (r *Registry) SetBreakerState(endpoint string, state float64, to string) {
	r.BreakerState.WithLabelValues(endpoint).Set(state)
	r.BreakerTransitions.WithLabelValues(endpoint, to).Inc()
}
