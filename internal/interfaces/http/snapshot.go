package http

import (
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_model/go"
)

// MetricsSnapshotResponse is a JSON rollup of the Prometheus registry for
// dashboards and the ops CLI, which do not speak the scrape format.
type MetricsSnapshotResponse struct {
	Timestamp     time.Time                `json:"timestamp"`
	CacheHitRatio float64                  `json:"cache_hit_ratio"`
	Counters      map[string]float64       `json:"counters"`
	Gauges        map[string]float64       `json:"gauges"`
	Timings       map[string]TimingSummary `json:"timings"`
	Families      []string                 `json:"families"`
}

// TimingSummary aggregates one histogram family across its label sets.
type TimingSummary struct {
	Count   uint64  `json:"count"`
	SumSecs float64 `json:"sum_seconds"`
}

// MetricsSnapshot serves GET /api/v1/status/metrics. Counter and gauge
// families are summed across label sets; histograms collapse to count
// and total seconds.
func (h *Handlers) MetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	families, err := h.metrics.Gatherer().Gather()
	if err != nil {
		h.log.Error().Err(err).Msg("metrics gather failed")
		h.writeError(w, r, err)
		return
	}

	resp := MetricsSnapshotResponse{
		Timestamp: time.Now().UTC(),
		Counters:  make(map[string]float64),
		Gauges:    make(map[string]float64),
		Timings:   make(map[string]TimingSummary),
		Families:  make([]string, 0, len(families)),
	}

	for _, mf := range families {
		name := mf.GetName()
		resp.Families = append(resp.Families, name)

		switch mf.GetType() {
		case io_prometheus_client.MetricType_COUNTER:
			for _, m := range mf.GetMetric() {
				resp.Counters[name] += m.GetCounter().GetValue()
			}
		case io_prometheus_client.MetricType_GAUGE:
			for _, m := range mf.GetMetric() {
				resp.Gauges[name] += m.GetGauge().GetValue()
			}
		case io_prometheus_client.MetricType_HISTOGRAM:
			agg := resp.Timings[name]
			for _, m := range mf.GetMetric() {
				agg.Count += m.GetHistogram().GetSampleCount()
				agg.SumSecs += m.GetHistogram().GetSampleSum()
			}
			resp.Timings[name] = agg
		}
	}
	sort.Strings(resp.Families)

	hits := resp.Counters["locator_cache_hits_total"]
	misses := resp.Counters["locator_cache_misses_total"]
	if total := hits + misses; total > 0 {
		resp.CacheHitRatio = hits / total
	}

	h.writeJSON(w, http.StatusOK, resp)
}
