package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	xrate "golang.org/x/time/rate"

	"github.com/lendpool/locator/internal/config"
	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/metrics"
)

type ctxKey int

const ctxKeyRequestID ctxKey = iota

// RequestID returns the request id minted by the gateway middleware, or ""
// outside a request scope
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// Server is the gateway HTTP server
type Server struct {
	router   *mux.Router
	server   *http.Server
	deadline time.Duration
	apiKeys  map[string]struct{}
	limiter  *xrate.Limiter
	metrics  *metrics.Registry
	log      zerolog.Logger
}

func NewServer(cfg config.ServerConfig, h *Handlers, m *metrics.Registry, log zerolog.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		deadline: cfg.RequestDeadline(),
		metrics:  m,
		log:      log.With().Str("component", "http_server").Logger(),
	}
	if len(cfg.APIKeys) > 0 {
		s.apiKeys = make(map[string]struct{}, len(cfg.APIKeys))
		for _, key := range cfg.APIKeys {
			s.apiKeys[key] = struct{}{}
		}
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = xrate.NewLimiter(xrate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	s.routes(h, m)

	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}
	return s
}

func (s *Server) routes(h *Handlers, m *metrics.Registry) {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	s.router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	// Admission runs only on the API surface; health and metrics stay open
	// for probes and scrapes.
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	if s.limiter != nil {
		api.Use(s.rateLimitMiddleware(h))
	}
	if len(s.apiKeys) > 0 {
		api.Use(s.authMiddleware(h))
	}
	api.HandleFunc("/rates/{ticker}", h.BorrowRate).Methods(http.MethodGet)
	api.HandleFunc("/calculate-locate", h.CalculateLocate).Methods(http.MethodPost)
	api.HandleFunc("/status/breakers", h.Breakers).Methods(http.MethodGet)
	api.HandleFunc("/status/metrics", h.MetricsSnapshot).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(h.NotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)
}

// Router exposes the handler tree for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving requests until Shutdown or a listener error
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("gateway listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("gateway shutting down")
	return s.server.Shutdown(ctx)
}

// requestIDMiddleware mints an id per request and echoes it in the response
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs one line per request and feeds the gateway metrics
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		route := routeTemplate(r)
		s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(wrapper.status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())

		s.log.Info().
			Str("request_id", RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", duration).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

// timeoutMiddleware enforces the request deadline end to end
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.deadline)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware sheds requests above the configured rate before any
// pricing work starts
func (s *Server) rateLimitMiddleware(h *Handlers) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.limiter.Allow() {
				h.reject(w, r, http.StatusTooManyRequests, domain.CodeRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware admits only requests presenting a configured API key
func (s *Server) authMiddleware(h *Handlers) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := s.apiKeys[r.Header.Get("X-API-Key")]; !ok {
				h.reject(w, r, http.StatusUnauthorized, domain.CodeUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// routeTemplate labels metrics by route pattern, not raw path, so ticker
// values cannot explode the label cardinality
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// statusRecorder captures the response status for logs and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}
