package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/datasource"
	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/metrics"
	"github.com/lendpool/locator/internal/service"
)

// maxBodyBytes caps request bodies; locate requests are a few hundred bytes
const maxBodyBytes = 1 << 20

// PricingService is the facade surface the gateway depends on
type PricingService interface {
	GetBorrowRate(ctx context.Context, ticker string) (domain.ResolvedRate, error)
	CalculateFee(ctx context.Context, req service.CalculateRequest) (service.CalculateResult, error)
}

// DatabaseHealth reports whether the stock and client stores are reachable
type DatabaseHealth interface {
	Ping(ctx context.Context) error
}

// CacheHealth reports whether the cache tier is reachable
type CacheHealth interface {
	Healthy(ctx context.Context) bool
}

// UpstreamStatus exposes breaker and budget state for the status routes
type UpstreamStatus interface {
	BreakerStates() []datasource.BreakerStatus
	BudgetStatuses() []datasource.BudgetStatus
}

// Handlers binds the gateway routes to their collaborators
type Handlers struct {
	svc       PricingService
	db        DatabaseHealth
	cache     CacheHealth
	upstreams UpstreamStatus
	metrics   *metrics.Registry
	log       zerolog.Logger
	version   string
	started   time.Time
}

func NewHandlers(svc PricingService, db DatabaseHealth, cacheHealth CacheHealth,
	upstreams UpstreamStatus, m *metrics.Registry, version string, log zerolog.Logger) *Handlers {
	return &Handlers{
		svc:       svc,
		db:        db,
		cache:     cacheHealth,
		upstreams: upstreams,
		metrics:   m,
		log:       log.With().Str("component", "gateway").Logger(),
		version:   version,
		started:   time.Now(),
	}
}

// BorrowRate serves GET /api/v1/rates/{ticker}
func (h *Handlers) BorrowRate(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	resolved, err := h.svc.GetBorrowRate(r.Context(), ticker)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newBorrowRateResponse(resolved))
}

// CalculateLocate serves POST /api/v1/calculate-locate
func (h *Handlers) CalculateLocate(w http.ResponseWriter, r *http.Request) {
	var req CalculateLocateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, domain.Validation("body", "malformed JSON request"))
		return
	}

	requestID := RequestID(r.Context())
	result, err := h.svc.CalculateFee(r.Context(), service.CalculateRequest{
		RequestID:     requestID,
		ClientID:      req.ClientID,
		Ticker:        req.Ticker,
		PositionValue: req.PositionValue,
		LoanDays:      req.LoanDays,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCalculateLocateResponse(result, requestID))
}

// Breakers serves GET /api/v1/status/breakers
func (h *Handlers) Breakers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"breakers": h.upstreams.BreakerStates(),
		"budgets":  h.upstreams.BudgetStatuses(),
	})
}

// NotFound answers unknown routes with the standard envelope
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, ErrorResponse{
		Status:  "error",
		Error:   "NOT_FOUND",
		Message: "unknown endpoint",
	})
}

// MethodNotAllowed answers wrong-method requests with the standard envelope
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Status:  "error",
		Error:   "METHOD_NOT_ALLOWED",
		Message: "method not allowed for this endpoint",
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("response encoding failed")
	}
}

// writeError maps an error chain to its stable code and transport status.
// Internal detail stays in the log; the wire carries only safe messages.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := domain.HTTPStatus(code)

	evt := h.log.Warn()
	if status >= http.StatusInternalServerError {
		evt = h.log.Error()
	}
	evt.Err(err).
		Str("code", code).
		Str("path", r.URL.Path).
		Str("request_id", RequestID(r.Context())).
		Msg("request failed")

	h.writeJSON(w, status, ErrorResponse{
		Status:    "error",
		Error:     code,
		Message:   safeMessage(code, err),
		RequestID: RequestID(r.Context()),
	})
}

// reject answers a request the gateway refuses to admit. These codes are
// minted at the door rather than mapped from an error chain, so they skip
// writeError.
func (h *Handlers) reject(w http.ResponseWriter, r *http.Request, status int, code string) {
	h.log.Warn().
		Str("code", code).
		Str("path", r.URL.Path).
		Str("request_id", RequestID(r.Context())).
		Msg("request refused")

	h.writeJSON(w, status, ErrorResponse{
		Status:    "error",
		Error:     code,
		Message:   safeMessage(code, nil),
		RequestID: RequestID(r.Context()),
	})
}

// safeMessage picks the client-facing text for a code. Validation reasons
// are user input echoes and safe to return; everything else is canned.
func safeMessage(code string, err error) string {
	switch code {
	case domain.CodeInvalidParameter:
		return err.Error()
	case domain.CodeTickerNotFound:
		return "ticker not found"
	case domain.CodeClientNotFound:
		return "client not found or inactive"
	case domain.CodeExternalUnavailable:
		return "pricing data temporarily unavailable, try again shortly"
	case domain.CodeUnauthorized:
		return "missing or invalid credentials"
	case domain.CodeRateLimited:
		return "request rate exceeded"
	default:
		return "fee calculation failed"
	}
}
