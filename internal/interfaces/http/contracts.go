// Package http is the JSON gateway in front of the pricing service. It
// owns request decoding, display rounding and the error envelope; all
// pricing decisions stay behind the service facade.
package http

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/domain/money"
	"github.com/lendpool/locator/internal/service"
)

// CalculateLocateRequest is the body of POST /api/v1/calculate-locate.
// position_value decodes from a JSON number or a quoted decimal string.
type CalculateLocateRequest struct {
	Ticker        string          `json:"ticker"`
	PositionValue decimal.Decimal `json:"position_value"`
	LoanDays      int             `json:"loan_days"`
	ClientID      string          `json:"client_id"`
}

// FeeBreakdownPayload itemises a locate fee, rounded for display
type FeeBreakdownPayload struct {
	BorrowCost      json.Number `json:"borrow_cost"`
	Markup          json.Number `json:"markup"`
	TransactionFees json.Number `json:"transaction_fees"`
}

// CalculateLocateResponse is the success body of POST /api/v1/calculate-locate
type CalculateLocateResponse struct {
	Status         string              `json:"status"`
	TotalFee       json.Number         `json:"total_fee"`
	Breakdown      FeeBreakdownPayload `json:"breakdown"`
	BorrowRateUsed json.Number         `json:"borrow_rate_used"`
	DataSources    domain.Provenance   `json:"data_sources"`
	RequestID      string              `json:"request_id,omitempty"`
}

// BorrowRateResponse is the success body of GET /api/v1/rates/{ticker}
type BorrowRateResponse struct {
	Status          string            `json:"status"`
	Ticker          string            `json:"ticker"`
	CurrentRate     json.Number       `json:"current_rate"`
	BorrowStatus    string            `json:"borrow_status"`
	VolatilityIndex *json.Number      `json:"volatility_index,omitempty"`
	EventRiskFactor *int              `json:"event_risk_factor,omitempty"`
	LastUpdated     time.Time         `json:"last_updated"`
	DataSources     domain.Provenance `json:"data_sources"`
}

// ErrorResponse is the envelope for every non-2xx answer. Error carries one
// of the stable machine-readable codes clients switch on.
type ErrorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// usd renders a dollar amount at its published two-decimal precision
func usd(d decimal.Decimal) json.Number {
	return json.Number(money.RoundUSD(d).StringFixed(money.USDScale))
}

// rate renders a rate at its published four-decimal precision
func rate(d decimal.Decimal) json.Number {
	return json.Number(money.RoundRate(d).StringFixed(money.RateScale))
}

func newBorrowRateResponse(resolved domain.ResolvedRate) BorrowRateResponse {
	resp := BorrowRateResponse{
		Status:       "success",
		Ticker:       resolved.Ticker,
		CurrentRate:  rate(resolved.CurrentRate),
		BorrowStatus: string(resolved.BorrowStatus),
		LastUpdated:  resolved.ResolvedAt,
		DataSources:  resolved.Provenance,
	}
	if resolved.VolatilityIndex != nil {
		vol := json.Number(resolved.VolatilityIndex.String())
		resp.VolatilityIndex = &vol
	}
	resp.EventRiskFactor = resolved.EventRiskFactor
	return resp
}

func newCalculateLocateResponse(result service.CalculateResult, requestID string) CalculateLocateResponse {
	return CalculateLocateResponse{
		Status:   "success",
		TotalFee: usd(result.Breakdown.TotalFee),
		Breakdown: FeeBreakdownPayload{
			BorrowCost:      usd(result.Breakdown.BorrowCost),
			Markup:          usd(result.Breakdown.Markup),
			TransactionFees: usd(result.Breakdown.TransactionFees),
		},
		BorrowRateUsed: rate(result.Breakdown.BorrowRateUsed),
		DataSources:    result.Provenance,
		RequestID:      requestID,
	}
}
