package http

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string                     `json:"status"` // "ok", "degraded", "unhealthy"
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	UptimeSecs int64                      `json:"uptime_secs"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth is one dependency's contribution to overall health
type ComponentHealth struct {
	Status string `json:"status"` // "pass", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

// healthProbeTimeout bounds the database ping so a dead pool cannot hang
// the health route
const healthProbeTimeout = 2 * time.Second

// Health serves GET /health. The database is load-bearing, so its failure
// makes the whole service unhealthy; a dead cache or an open breaker only
// degrades it, because requests still succeed through the fallback paths.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	components := map[string]ComponentHealth{}

	dbCheck := ComponentHealth{Status: "pass"}
	if err := h.db.Ping(ctx); err != nil {
		dbCheck = ComponentHealth{Status: "fail", Detail: "database unreachable"}
	}
	components["database"] = dbCheck

	cacheCheck := ComponentHealth{Status: "pass"}
	if !h.cache.Healthy(ctx) {
		cacheCheck = ComponentHealth{Status: "warn", Detail: "cache unreachable, serving without it"}
	}
	components["cache"] = cacheCheck

	breakersOpen := 0
	for _, b := range h.upstreams.BreakerStates() {
		check := ComponentHealth{Status: "pass"}
		switch b.State {
		case "open":
			breakersOpen++
			check = ComponentHealth{Status: "warn", Detail: "circuit open, serving fallback data"}
		case "half-open":
			check = ComponentHealth{Status: "warn", Detail: "circuit probing"}
		}
		components["upstream:"+b.Endpoint] = check
	}

	status := "ok"
	httpStatus := http.StatusOK
	switch {
	case dbCheck.Status == "fail":
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	case cacheCheck.Status == "warn" || breakersOpen > 0:
		status = "degraded"
	}

	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, httpStatus, HealthResponse{
		Status:     status,
		Version:    h.version,
		Timestamp:  time.Now().UTC(),
		UptimeSecs: int64(time.Since(h.started).Seconds()),
		Components: components,
	})
}
