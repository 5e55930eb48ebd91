package rates

import (
	"github.com/shopspring/decimal"

	"github.com/lendpool/locator/internal/domain"
)

// FallbackPolicy is the substitution table applied when an upstream input is
// unavailable. Every degraded path in the resolver goes through here so the
// substitutions and their provenance tags live in one place:
//
//	borrow-rate source down   -> stock.min_borrow_rate, base=fallback
//	ticker volatility absent  -> market-wide volatility, volatility=live_market
//	market volatility down    -> DefaultVolatility,      volatility=fallback
//	event source down         -> 0,                      event=fallback
//	event source has no data  -> 0,                      event=absent
type FallbackPolicy struct {
	params Params
}

// NewFallbackPolicy builds the substitution table from pricing params
func NewFallbackPolicy(params Params) FallbackPolicy {
	return FallbackPolicy{params: params}
}

// BaseRate substitutes the stock's own minimum when the borrow-rate source
// is unavailable. ok is false when the stock row carries no minimum, which
// leaves no basis for a rate at all.
func (f FallbackPolicy) BaseRate(stock domain.Stock) (decimal.Decimal, domain.SourceTag, bool) {
	if !stock.MinBorrowRate.Valid {
		return decimal.Decimal{}, domain.SourceFallback, false
	}
	return stock.MinBorrowRate.Decimal, domain.SourceFallback, true
}

// MarketVolatility tags a market-wide reading substituted for a ticker-level one
func (f FallbackPolicy) MarketVolatility(market decimal.Decimal) (decimal.Decimal, domain.SourceTag) {
	return market, domain.SourceLiveMarket
}

// Volatility substitutes the configured default when every volatility source
// is unavailable
func (f FallbackPolicy) Volatility() (decimal.Decimal, domain.SourceTag) {
	return f.params.DefaultVolatility, domain.SourceFallback
}

// EventRisk substitutes zero risk. absent marks an upstream that answered
// with no events; otherwise the source itself was unreachable.
func (f FallbackPolicy) EventRisk(absent bool) (int, domain.SourceTag) {
	if absent {
		return 0, domain.SourceAbsent
	}
	return 0, domain.SourceFallback
}
