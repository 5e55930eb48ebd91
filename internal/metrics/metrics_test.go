package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RecordsAndGathers(t *testing.T) {
	r := New()

	r.ObserveCacheGet("borrow_rate", true, time.Millisecond)
	r.ObserveCacheGet("borrow_rate", false, 2*time.Millisecond)
	r.ObserveUpstream("volatility", "success", 10*time.Millisecond)
	r.SetBreakerState("borrow", 2, "open")
	r.AuditDropped.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheHits.WithLabelValues("borrow_rate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheMisses.WithLabelValues("borrow_rate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.UpstreamRequests.WithLabelValues("volatility", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.BreakerState.WithLabelValues("borrow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.AuditDropped))

	mfs, err := r.Gatherer().Gather()
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, mf := range mfs {
		seen[mf.GetName()] = true
	}
	for _, want := range []string{
		"locator_cache_hits_total",
		"locator_cache_misses_total",
		"locator_cache_op_seconds",
		"locator_upstream_requests_total",
		"locator_breaker_state",
		"locator_breaker_transitions_total",
		"locator_audit_dropped_total",
	} {
		assert.True(t, seen[want], "metric %s not gathered", want)
	}
}

func TestRegistry_InstancesAreIsolated(t *testing.T) {
	a := New()
	b := New()

	a.AuditEnqueued.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.AuditEnqueued))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.AuditEnqueued))
}
