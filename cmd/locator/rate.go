package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/domain/money"
)

func rateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rate <ticker>",
		Short: "Resolve the current borrow rate for one ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRate(cmd.Context(), args[0])
		},
	}
}

// ratePrintout mirrors the HTTP response shape so a CLI lookup and a
// curl against /api/v1/rates agree digit for digit.
type ratePrintout struct {
	Ticker          string            `json:"ticker"`
	CurrentRate     json.Number       `json:"current_rate"`
	BorrowStatus    string            `json:"borrow_status"`
	VolatilityIndex *json.Number      `json:"volatility_index,omitempty"`
	EventRiskFactor *int              `json:"event_risk_factor,omitempty"`
	LastUpdated     time.Time         `json:"last_updated"`
	DataSources     domain.Provenance `json:"data_sources"`
}

func runRate(ctx context.Context, ticker string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resolved, err := a.resolver.Resolve(ctx, ticker)
	if err != nil {
		return err
	}

	out := ratePrintout{
		Ticker:       resolved.Ticker,
		CurrentRate:  json.Number(money.RoundRate(resolved.CurrentRate).StringFixed(money.RateScale)),
		BorrowStatus: string(resolved.BorrowStatus),
		LastUpdated:  resolved.ResolvedAt,
		DataSources:  resolved.Provenance,
	}
	if resolved.VolatilityIndex != nil {
		vol := json.Number(resolved.VolatilityIndex.String())
		out.VolatilityIndex = &vol
	}
	out.EventRiskFactor = resolved.EventRiskFactor

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
