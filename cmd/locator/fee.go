package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/domain/money"
	"github.com/lendpool/locator/internal/service"
)

func feeCmd() *cobra.Command {
	var (
		ticker   string
		clientID string
		position string
		days     int
	)
	cmd := &cobra.Command{
		Use:   "fee",
		Short: "Price one locate fee",
		Long: `fee runs a single locate calculation through the full pipeline,
including the audit trail, and prints the itemised breakdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFee(cmd.Context(), ticker, clientID, position, days)
		},
	}
	cmd.Flags().StringVar(&ticker, "ticker", "", "stock ticker to locate")
	cmd.Flags().StringVar(&clientID, "client", "", "billing client id")
	cmd.Flags().StringVar(&position, "position", "", "position value in USD")
	cmd.Flags().IntVar(&days, "days", 1, "loan duration in days")
	_ = cmd.MarkFlagRequired("ticker")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("position")
	return cmd
}

// feePrintout carries the same rounded figures the gateway publishes,
// flattened for terminal reading.
type feePrintout struct {
	TotalFee       json.Number       `json:"total_fee"`
	BorrowCost     json.Number       `json:"borrow_cost"`
	Markup         json.Number       `json:"markup"`
	TransactionFee json.Number       `json:"transaction_fees"`
	BorrowRateUsed json.Number       `json:"borrow_rate_used"`
	CacheHit       bool              `json:"cache_hit"`
	DataSources    domain.Provenance `json:"data_sources"`
}

func runFee(ctx context.Context, ticker, clientID, position string, days int) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	value, err := decimal.NewFromString(position)
	if err != nil {
		return domain.Validation("position_value", "must be a decimal number")
	}

	trail := a.newTrail()
	trail.Start()
	defer func() {
		drain, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trail.Close(drain); err != nil {
			a.log.Warn().Err(err).Msg("audit queue did not drain")
		}
	}()

	svc := a.newService(trail)
	result, err := svc.CalculateFee(ctx, service.CalculateRequest{
		ClientID:      clientID,
		Ticker:        ticker,
		PositionValue: value,
		LoanDays:      days,
	})
	if err != nil {
		return err
	}

	out := feePrintout{
		TotalFee:       json.Number(money.RoundUSD(result.Breakdown.TotalFee).StringFixed(money.USDScale)),
		BorrowCost:     json.Number(money.RoundUSD(result.Breakdown.BorrowCost).StringFixed(money.USDScale)),
		Markup:         json.Number(money.RoundUSD(result.Breakdown.Markup).StringFixed(money.USDScale)),
		TransactionFee: json.Number(money.RoundUSD(result.Breakdown.TransactionFees).StringFixed(money.USDScale)),
		BorrowRateUsed: json.Number(money.RoundRate(result.Breakdown.BorrowRateUsed).StringFixed(money.RateScale)),
		CacheHit:       result.CacheHit,
		DataSources:    result.Provenance,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
