package cache

import (
	"fmt"
	"strings"
)

// Key namespaces. Every cached value lives under one of these prefixes and
// inherits the prefix's TTL tier.
const (
	PrefixBorrowRate       = "borrow_rate"
	PrefixVolatility       = "volatility"
	PrefixMarketVolatility = "market_volatility"
	PrefixEventRisk        = "event_risk"
	PrefixStock            = "stock"
	PrefixBrokerConfig     = "broker_config"
	PrefixCalculation      = "calculation"
)

// KeyBorrowRate caches a fully resolved rate for a ticker
func KeyBorrowRate(ticker string) string {
	return PrefixBorrowRate + ":" + ticker
}

// KeyVolatility caches a ticker-level volatility reading
func KeyVolatility(ticker string) string {
	return PrefixVolatility + ":" + ticker
}

// KeyMarketVolatility caches the market-wide volatility reading
func KeyMarketVolatility() string {
	return PrefixMarketVolatility
}

// KeyEventRisk caches a ticker's event risk factor
func KeyEventRisk(ticker string) string {
	return PrefixEventRisk + ":" + ticker
}

// KeyStock caches stock metadata for the read-through repository
func KeyStock(ticker string) string {
	return PrefixStock + ":" + ticker
}

// KeyBrokerConfig caches a client billing configuration
func KeyBrokerConfig(clientID string) string {
	return PrefixBrokerConfig + ":" + clientID
}

// KeyCalculation caches a full fee calculation. Position is the exact
// decimal string so two positions differing below a cent stay distinct.
func KeyCalculation(ticker, clientID, position string, loanDays int) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", PrefixCalculation, ticker, clientID, position, loanDays)
}

// PrefixOf extracts the namespace prefix from a cache key
func PrefixOf(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
