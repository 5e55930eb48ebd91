package cache

import (
	"time"

	"github.com/lendpool/locator/internal/config"
)

// Policy maps key prefixes to TTL tiers. Tiers follow how fast the
// underlying data moves: rates drift on a minute scale, volatility is
// slower, event calendars are near-static intraday.
type Policy struct {
	borrowRate       time.Duration
	volatility       time.Duration
	marketVolatility time.Duration
	eventRisk        time.Duration
	stock            time.Duration
	brokerConfig     time.Duration
	calculation      time.Duration
}

// NewPolicy builds the TTL policy from config
func NewPolicy(ttls config.TTLSecsConfig) Policy {
	return Policy{
		borrowRate:       time.Duration(ttls.BorrowRate) * time.Second,
		volatility:       time.Duration(ttls.Volatility) * time.Second,
		marketVolatility: time.Duration(ttls.MarketVolatility) * time.Second,
		eventRisk:        time.Duration(ttls.EventRisk) * time.Second,
		stock:            time.Duration(ttls.Stock) * time.Second,
		brokerConfig:     time.Duration(ttls.BrokerConfig) * time.Second,
		calculation:      time.Duration(ttls.Calculation) * time.Second,
	}
}

// For returns the TTL tier for a key. Unknown prefixes get the shortest
// tier so a typo can never pin stale data for an hour.
func (p Policy) For(key string) time.Duration {
	switch PrefixOf(key) {
	case PrefixBorrowRate:
		return p.borrowRate
	case PrefixVolatility:
		return p.volatility
	case PrefixMarketVolatility:
		return p.marketVolatility
	case PrefixEventRisk:
		return p.eventRisk
	case PrefixStock:
		return p.stock
	case PrefixBrokerConfig:
		return p.brokerConfig
	case PrefixCalculation:
		return p.calculation
	default:
		return p.calculation
	}
}
