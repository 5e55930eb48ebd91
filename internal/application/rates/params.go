// Package rates resolves the current borrow rate for a ticker: live base
// rate, volatility and event-risk adjustments, minimum clamp, with cached
// inputs and a centralized fallback policy for every upstream failure.
package rates

import (
	"github.com/shopspring/decimal"

	"github.com/lendpool/locator/internal/config"
)

// Params are the pricing formula constants as exact decimals. They are
// converted from config floats once at construction; nothing downstream
// touches a float again.
type Params struct {
	GlobalMinRate       decimal.Decimal
	DefaultVolatility   decimal.Decimal
	VolFactor           decimal.Decimal
	HighVolThreshold    decimal.Decimal
	HighVolBump         decimal.Decimal
	ExtremeVolThreshold decimal.Decimal
	ExtremeVolBump      decimal.Decimal
	EventFactor         decimal.Decimal
}

// ParamsFromConfig converts the pricing config into exact decimal constants
func ParamsFromConfig(cfg config.PricingConfig) Params {
	return Params{
		GlobalMinRate:       decimal.NewFromFloat(cfg.GlobalMinRate),
		DefaultVolatility:   decimal.NewFromFloat(cfg.DefaultVolatility),
		VolFactor:           decimal.NewFromFloat(cfg.VolFactor),
		HighVolThreshold:    decimal.NewFromFloat(cfg.HighVolThreshold),
		HighVolBump:         decimal.NewFromFloat(cfg.HighVolBump),
		ExtremeVolThreshold: decimal.NewFromFloat(cfg.ExtremeVolThreshold),
		ExtremeVolBump:      decimal.NewFromFloat(cfg.ExtremeVolBump),
		EventFactor:         decimal.NewFromFloat(cfg.EventFactor),
	}
}

var (
	one = decimal.NewFromInt(1)
	ten = decimal.NewFromInt(10)
)

// VolatilityAdjustment maps a volatility index to a rate adjustment:
// vol_index * VolFactor, plus a bump at the high threshold and a further
// bump at the extreme threshold. Bumps stack.
func (p Params) VolatilityAdjustment(volIndex decimal.Decimal) decimal.Decimal {
	adj := volIndex.Mul(p.VolFactor)
	if volIndex.GreaterThanOrEqual(p.HighVolThreshold) {
		adj = adj.Add(p.HighVolBump)
	}
	if volIndex.GreaterThanOrEqual(p.ExtremeVolThreshold) {
		adj = adj.Add(p.ExtremeVolBump)
	}
	return adj
}

// EventAdjustment maps a 0-10 event risk factor to a rate adjustment:
// (factor / 10) * EventFactor.
func (p Params) EventAdjustment(riskFactor int) decimal.Decimal {
	return decimal.NewFromInt(int64(riskFactor)).Div(ten).Mul(p.EventFactor)
}

// Adjust applies both adjustments to a base rate in the fixed order:
// base * (1 + vol_adj) * (1 + event_adj). No rounding happens here.
func (p Params) Adjust(base, volIndex decimal.Decimal, riskFactor int) decimal.Decimal {
	adjusted := base.Mul(one.Add(p.VolatilityAdjustment(volIndex)))
	return adjusted.Mul(one.Add(p.EventAdjustment(riskFactor)))
}

// Clamp floors a rate at max(stock minimum, global minimum)
func (p Params) Clamp(rate decimal.Decimal, minBorrowRate decimal.NullDecimal) decimal.Decimal {
	floor := p.GlobalMinRate
	if minBorrowRate.Valid && minBorrowRate.Decimal.GreaterThan(floor) {
		floor = minBorrowRate.Decimal
	}
	if rate.LessThan(floor) {
		return floor
	}
	return rate
}
