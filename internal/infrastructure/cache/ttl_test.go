package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lendpool/locator/internal/config"
)

func TestPolicy_TiersByPrefix(t *testing.T) {
	p := NewPolicy(config.Default().Cache.TTLSecs)

	assert.Equal(t, 300*time.Second, p.For(KeyBorrowRate("AAPL")))
	assert.Equal(t, 900*time.Second, p.For(KeyVolatility("AAPL")))
	assert.Equal(t, 900*time.Second, p.For(KeyMarketVolatility()))
	assert.Equal(t, 3600*time.Second, p.For(KeyEventRisk("TSLA")))
	assert.Equal(t, 1800*time.Second, p.For(KeyStock("AAPL")))
	assert.Equal(t, 1800*time.Second, p.For(KeyBrokerConfig("BRK001")))
	assert.Equal(t, 60*time.Second, p.For(KeyCalculation("AAPL", "BRK001", "100000", 30)))
}

func TestPolicy_UnknownPrefixGetsShortTier(t *testing.T) {
	p := NewPolicy(config.Default().Cache.TTLSecs)
	assert.Equal(t, 60*time.Second, p.For("mystery:key"))
}

func TestKeyShapes(t *testing.T) {
	assert.Equal(t, "borrow_rate:AAPL", KeyBorrowRate("AAPL"))
	assert.Equal(t, "volatility:TSLA", KeyVolatility("TSLA"))
	assert.Equal(t, "market_volatility", KeyMarketVolatility())
	assert.Equal(t, "event_risk:GME", KeyEventRisk("GME"))
	assert.Equal(t, "stock:GME", KeyStock("GME"))
	assert.Equal(t, "broker_config:BRK001", KeyBrokerConfig("BRK001"))
	assert.Equal(t, "calculation:AAPL:BRK001:100000.5:30", KeyCalculation("AAPL", "BRK001", "100000.5", 30))
}

func TestPrefixOf(t *testing.T) {
	assert.Equal(t, "borrow_rate", PrefixOf("borrow_rate:AAPL"))
	assert.Equal(t, "market_volatility", PrefixOf("market_volatility"))
	assert.Equal(t, "calculation", PrefixOf("calculation:AAPL:BRK001:1:30"))
}
