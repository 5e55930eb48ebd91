package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BorrowStatus classifies how hard a ticker is to locate
type BorrowStatus string

const (
	BorrowEasy   BorrowStatus = "EASY"
	BorrowMedium BorrowStatus = "MEDIUM"
	BorrowHard   BorrowStatus = "HARD"
)

// Valid reports whether the status is one of the three known classes
func (s BorrowStatus) Valid() bool {
	switch s {
	case BorrowEasy, BorrowMedium, BorrowHard:
		return true
	}
	return false
}

// FeeType selects how a client's transaction fee is assessed
type FeeType string

const (
	FeeFlat       FeeType = "FLAT"
	FeePercentage FeeType = "PERCENTAGE"
)

// Valid reports whether the fee type is a known variant
func (t FeeType) Valid() bool {
	return t == FeeFlat || t == FeePercentage
}

// SourceTag records where a pricing input came from
type SourceTag string

const (
	SourceLive       SourceTag = "live"
	SourceLiveMarket SourceTag = "live_market" // market-wide volatility substituted for ticker-level
	SourceFallback   SourceTag = "fallback"
	SourceAbsent     SourceTag = "absent" // upstream answered, no data for ticker
)

// Provenance tags each resolved-rate input with its origin
type Provenance struct {
	Base       SourceTag `json:"base"`
	Volatility SourceTag `json:"volatility"`
	Event      SourceTag `json:"event"`
}

// Degraded reports whether any input was served from fallback policy
func (p Provenance) Degraded() bool {
	return p.Base == SourceFallback || p.Volatility == SourceFallback || p.Event == SourceFallback
}

// Stock is a row in the securities master
type Stock struct {
	Ticker        string              `db:"ticker" json:"ticker"`
	BorrowStatus  BorrowStatus        `db:"borrow_status" json:"borrow_status"`
	LenderAPIID   string              `db:"lender_api_id" json:"lender_api_id,omitempty"`
	MinBorrowRate decimal.NullDecimal `db:"min_borrow_rate" json:"min_borrow_rate"`
	LastUpdated   time.Time           `db:"last_updated" json:"last_updated"`
}

// ClientConfig is a broker client's billing configuration
type ClientConfig struct {
	ClientID          string          `db:"client_id" json:"client_id"`
	MarkupPercentage  decimal.Decimal `db:"markup_percentage" json:"markup_percentage"`
	FeeType           FeeType         `db:"fee_type" json:"fee_type"`
	TransactionAmount decimal.Decimal `db:"transaction_amount" json:"transaction_amount"`
	Active            bool            `db:"active" json:"active"`
	LastUpdated       time.Time       `db:"last_updated" json:"last_updated"`
}

// ResolvedRate is the full output of a borrow-rate resolution
type ResolvedRate struct {
	Ticker          string           `json:"ticker"`
	CurrentRate     decimal.Decimal  `json:"current_rate"`
	BorrowStatus    BorrowStatus     `json:"borrow_status"`
	VolatilityIndex *decimal.Decimal `json:"volatility_index,omitempty"`
	EventRiskFactor *int             `json:"event_risk_factor,omitempty"`
	Provenance      Provenance       `json:"provenance"`
	ResolvedAt      time.Time        `json:"resolved_at"`
}

// FeeBreakdown is an itemised locate fee, every figure rounded to cents
type FeeBreakdown struct {
	BorrowCost      decimal.Decimal `json:"borrow_cost"`
	Markup          decimal.Decimal `json:"markup"`
	TransactionFees decimal.Decimal `json:"transaction_fees"`
	TotalFee        decimal.Decimal `json:"total_fee"`
	BorrowRateUsed  decimal.Decimal `json:"borrow_rate_used"`
}

var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// ValidTicker reports whether t matches the 1-5 uppercase-letter ticker format
func ValidTicker(t string) bool {
	return tickerPattern.MatchString(t)
}

// NormalizeTicker uppercases and trims raw ticker input before validation
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
