package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/lendpool/locator/internal/datasource"
	"github.com/lendpool/locator/internal/domain"
)

const (
	feedBorrow     = "borrow"
	feedVolatility = "volatility"
	feedEvents     = "events"
)

var feedNames = []string{feedBorrow, feedVolatility, feedEvents}

type quote struct {
	Rate   decimal.Decimal     `json:"rate"`
	Status domain.BorrowStatus `json:"status"`
}

type fault struct {
	LatencyMS int     `json:"latency_ms"`
	ErrorRate float64 `json:"error_rate"`
	Down      bool    `json:"down"`
}

// store holds the mock feed universe behind one lock. Everything is
// mutable at runtime through the /admin routes so integration tests can
// steer upstream behaviour per request.
type store struct {
	mu     sync.RWMutex
	quotes map[string]quote
	vols   map[string]decimal.Decimal
	market decimal.Decimal
	events map[string][]datasource.RiskEvent
	faults map[string]fault
	apiKey string
}

func newStore(apiKey string) *store {
	s := &store{
		quotes: make(map[string]quote),
		vols:   make(map[string]decimal.Decimal),
		events: make(map[string][]datasource.RiskEvent),
		faults: make(map[string]fault),
		apiKey: apiKey,
	}
	s.seed()
	return s
}

// seed loads a small universe that exercises the whole fallback chain:
// calm and stressed tickers, a ticker with no volatility reading, and a
// busy event calendar.
func (s *store) seed() {
	s.quotes["AAPL"] = quote{Rate: dec("0.05"), Status: domain.BorrowEasy}
	s.quotes["NVDA"] = quote{Rate: dec("0.03"), Status: domain.BorrowEasy}
	s.quotes["TSLA"] = quote{Rate: dec("0.12"), Status: domain.BorrowMedium}
	s.quotes["BYND"] = quote{Rate: dec("0.18"), Status: domain.BorrowMedium}
	s.quotes["GME"] = quote{Rate: dec("0.35"), Status: domain.BorrowHard}
	s.quotes["AMC"] = quote{Rate: dec("0.42"), Status: domain.BorrowHard}

	s.vols["AAPL"] = dec("15")
	s.vols["NVDA"] = dec("22")
	s.vols["TSLA"] = dec("28")
	s.vols["GME"] = dec("45")
	s.vols["AMC"] = dec("51")
	// BYND has no ticker reading so the resolver falls to market volatility
	s.market = dec("18")

	in := func(days int) string { return time.Now().AddDate(0, 0, days).Format("2006-01-02") }
	s.events["GME"] = []datasource.RiskEvent{{Type: "earnings", Date: in(7), RiskFactor: 7}}
	s.events["TSLA"] = []datasource.RiskEvent{{Type: "product_launch", Date: in(12), RiskFactor: 4}}
	s.events["AMC"] = []datasource.RiskEvent{
		{Type: "earnings", Date: in(3), RiskFactor: 6},
		{Type: "special_dividend", Date: in(20), RiskFactor: 3},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (s *store) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.Handle("/borrow/{ticker}", s.withFault(feedBorrow, s.handleBorrow)).Methods(http.MethodGet)
	api.Handle("/volatility/market", s.withFault(feedVolatility, s.handleMarketVolatility)).Methods(http.MethodGet)
	api.Handle("/volatility/{ticker}", s.withFault(feedVolatility, s.handleVolatility)).Methods(http.MethodGet)
	api.Handle("/events/{ticker}", s.withFault(feedEvents, s.handleEvents)).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/borrow/{ticker}", s.handleSetBorrow).Methods(http.MethodPut)
	admin.HandleFunc("/borrow/{ticker}", s.handleDeleteBorrow).Methods(http.MethodDelete)
	admin.HandleFunc("/volatility/{ticker}", s.handleSetVolatility).Methods(http.MethodPut)
	admin.HandleFunc("/events/{ticker}", s.handleSetEvents).Methods(http.MethodPut)
	admin.HandleFunc("/faults/{feed}", s.handleSetFault).Methods(http.MethodPut)
	admin.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	return r
}

func (s *store) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withFault applies the feed's configured fault before the real handler:
// latency first, then down, then the random error dice.
func (s *store) withFault(feed string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		f := s.faults[feed]
		s.mu.RUnlock()

		if f.LatencyMS > 0 {
			time.Sleep(time.Duration(f.LatencyMS) * time.Millisecond)
		}
		if f.Down {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": feed + " feed is down"})
			return
		}
		if f.ErrorRate > 0 && rand.Float64() < f.ErrorRate {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected failure"})
			return
		}
		h(w, r)
	})
}

func (s *store) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, feed := range feedNames {
		if !s.faults[feed].Down {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "simfeeds"})
			return
		}
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
}

func (s *store) handleBorrow(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	s.mu.RLock()
	q, ok := s.quotes[ticker]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown ticker"})
		return
	}
	writeJSON(w, http.StatusOK, datasource.BorrowQuote{
		Ticker:    ticker,
		Rate:      q.Rate,
		Status:    q.Status,
		Timestamp: time.Now().UTC(),
	})
}

type volatilityReading struct {
	Ticker     string          `json:"ticker,omitempty"`
	Volatility decimal.Decimal `json:"volatility"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (s *store) handleVolatility(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	s.mu.RLock()
	v, ok := s.vols[ticker]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no volatility reading"})
		return
	}
	writeJSON(w, http.StatusOK, volatilityReading{Ticker: ticker, Volatility: v, Timestamp: time.Now().UTC()})
}

func (s *store) handleMarketVolatility(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	v := s.market
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, volatilityReading{Volatility: v, Timestamp: time.Now().UTC()})
}

type eventsEnvelope struct {
	Ticker string                 `json:"ticker"`
	Events []datasource.RiskEvent `json:"events"`
}

func (s *store) handleEvents(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	s.mu.RLock()
	evs := s.events[ticker]
	s.mu.RUnlock()
	// an empty calendar is an answer, not a 404
	writeJSON(w, http.StatusOK, eventsEnvelope{Ticker: ticker, Events: evs})
}

func (s *store) handleSetBorrow(w http.ResponseWriter, r *http.Request) {
	var q quote
	if !decode(w, r, &q) {
		return
	}
	if q.Status != "" && !q.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be EASY, MEDIUM or HARD"})
		return
	}
	if q.Status == "" {
		q.Status = domain.BorrowMedium
	}
	ticker := mux.Vars(r)["ticker"]
	s.mu.Lock()
	s.quotes[ticker] = q
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"ticker": ticker})
}

func (s *store) handleDeleteBorrow(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	s.mu.Lock()
	delete(s.quotes, ticker)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *store) handleSetVolatility(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Volatility decimal.Decimal `json:"volatility"`
	}
	if !decode(w, r, &body) {
		return
	}
	ticker := mux.Vars(r)["ticker"]
	s.mu.Lock()
	if ticker == "market" {
		s.market = body.Volatility
	} else {
		s.vols[ticker] = body.Volatility
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"ticker": ticker})
}

func (s *store) handleSetEvents(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Events []datasource.RiskEvent `json:"events"`
	}
	if !decode(w, r, &body) {
		return
	}
	ticker := mux.Vars(r)["ticker"]
	s.mu.Lock()
	s.events[ticker] = body.Events
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"ticker": ticker})
}

func (s *store) handleSetFault(w http.ResponseWriter, r *http.Request) {
	var f fault
	if !decode(w, r, &f) {
		return
	}
	feed := mux.Vars(r)["feed"]
	s.mu.Lock()
	switch feed {
	case "all":
		for _, name := range feedNames {
			s.faults[name] = f
		}
	case feedBorrow, feedVolatility, feedEvents:
		s.faults[feed] = f
	default:
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "feed must be borrow, volatility, events or all"})
		return
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"feed": feed})
}

func (s *store) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickers := make([]string, 0, len(s.quotes))
	for t := range s.quotes {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tickers":           tickers,
		"market_volatility": s.market,
		"faults":            s.faults,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
