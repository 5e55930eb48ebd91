package rates

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/lendpool/locator/internal/domain"
)

func TestFallbackPolicy_BaseRate(t *testing.T) {
	policy := NewFallbackPolicy(defaultParams())

	stock := domain.Stock{
		Ticker:        "AAPL",
		MinBorrowRate: decimal.NewNullDecimal(dec("0.02")),
	}
	rate, tag, ok := policy.BaseRate(stock)
	assert.True(t, ok)
	assert.True(t, rate.Equal(dec("0.02")))
	assert.Equal(t, domain.SourceFallback, tag)

	// no minimum on record means no substitute exists
	_, _, ok = policy.BaseRate(domain.Stock{Ticker: "NOPE"})
	assert.False(t, ok)
}

func TestFallbackPolicy_Volatility(t *testing.T) {
	policy := NewFallbackPolicy(defaultParams())

	market, tag := policy.MarketVolatility(dec("25.5"))
	assert.True(t, market.Equal(dec("25.5")))
	assert.Equal(t, domain.SourceLiveMarket, tag)

	def, tag := policy.Volatility()
	assert.True(t, def.Equal(dec("20")))
	assert.Equal(t, domain.SourceFallback, tag)
}

func TestFallbackPolicy_EventRisk(t *testing.T) {
	policy := NewFallbackPolicy(defaultParams())

	factor, tag := policy.EventRisk(true)
	assert.Equal(t, 0, factor)
	assert.Equal(t, domain.SourceAbsent, tag)

	factor, tag = policy.EventRisk(false)
	assert.Equal(t, 0, factor)
	assert.Equal(t, domain.SourceFallback, tag)
}
