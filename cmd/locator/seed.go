package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/lendpool/locator/internal/domain"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo universe into the database",
		Long: `seed upserts the demo securities master and two billing clients,
matching the tickers simfeeds serves, so a fresh local stack can price
locates end to end. Safe to re-run; existing rows are replaced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context())
		},
	}
}

func runSeed(ctx context.Context) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now().UTC()
	minRate := func(s string) decimal.NullDecimal {
		return decimal.NewNullDecimal(decimal.RequireFromString(s))
	}

	stocks := []domain.Stock{
		{Ticker: "AAPL", BorrowStatus: domain.BorrowEasy, LenderAPIID: "LND-AAPL", MinBorrowRate: minRate("0.01"), LastUpdated: now},
		{Ticker: "NVDA", BorrowStatus: domain.BorrowEasy, LenderAPIID: "LND-NVDA", MinBorrowRate: minRate("0.005"), LastUpdated: now},
		{Ticker: "TSLA", BorrowStatus: domain.BorrowMedium, LenderAPIID: "LND-TSLA", MinBorrowRate: minRate("0.05"), LastUpdated: now},
		{Ticker: "BYND", BorrowStatus: domain.BorrowMedium, LenderAPIID: "LND-BYND", MinBorrowRate: minRate("0.08"), LastUpdated: now},
		{Ticker: "GME", BorrowStatus: domain.BorrowHard, LenderAPIID: "LND-GME", MinBorrowRate: minRate("0.15"), LastUpdated: now},
		{Ticker: "AMC", BorrowStatus: domain.BorrowHard, LenderAPIID: "LND-AMC", MinBorrowRate: minRate("0.20"), LastUpdated: now},
	}

	clients := []domain.ClientConfig{
		{
			ClientID:          "BRK001",
			MarkupPercentage:  decimal.RequireFromString("5"),
			FeeType:           domain.FeeFlat,
			TransactionAmount: decimal.RequireFromString("25"),
			Active:            true,
			LastUpdated:       now,
		},
		{
			ClientID:          "BRK002",
			MarkupPercentage:  decimal.RequireFromString("3.5"),
			FeeType:           domain.FeePercentage,
			TransactionAmount: decimal.RequireFromString("0.5"),
			Active:            true,
			LastUpdated:       now,
		},
		{
			ClientID:          "BRK099",
			MarkupPercentage:  decimal.RequireFromString("5"),
			FeeType:           domain.FeeFlat,
			TransactionAmount: decimal.RequireFromString("25"),
			Active:            false, // exercises the inactive-client rejection
			LastUpdated:       now,
		},
	}

	repos := a.db.Repository()
	for _, s := range stocks {
		if err := repos.Stocks.Upsert(ctx, s); err != nil {
			return fmt.Errorf("seed stock %s: %w", s.Ticker, err)
		}
	}
	for _, c := range clients {
		if err := repos.Clients.Upsert(ctx, c); err != nil {
			return fmt.Errorf("seed client %s: %w", c.ClientID, err)
		}
	}

	a.log.Info().Int("stocks", len(stocks)).Int("clients", len(clients)).Msg("demo universe seeded")
	return nil
}
