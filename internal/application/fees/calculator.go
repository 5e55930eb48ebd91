// Package fees prices a locate from a resolved borrow rate and a client's
// billing configuration. Arithmetic is exact decimal end to end; rounding
// happens once, when the breakdown is assembled, with the residual cent
// reconciled into the largest component.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/domain/money"
)

// DaysPerYear is the fixed day-count convention for borrow cost accrual
const DaysPerYear = 365

// Formula names the pricing formula recorded with every audit row
const Formula = "borrow_cost + markup + transaction_fees"

var (
	daysPerYear = decimal.NewFromInt(DaysPerYear)
	hundred     = decimal.NewFromInt(100)
)

// Validate rejects out-of-range inputs before any pricing work runs
func Validate(position decimal.Decimal, loanDays int) error {
	if !position.IsPositive() {
		return domain.Validation("position_value", "must be greater than zero")
	}
	if loanDays < 1 {
		return domain.Validation("loan_days", "must be at least 1")
	}
	return nil
}

// Compute prices a locate. The returned breakdown carries cent-rounded
// components whose sum equals the rounded total exactly, and the unrounded
// rate they were priced at.
func Compute(resolved domain.ResolvedRate, client domain.ClientConfig,
	position decimal.Decimal, loanDays int) (domain.FeeBreakdown, error) {
	if err := Validate(position, loanDays); err != nil {
		return domain.FeeBreakdown{}, err
	}

	rate := resolved.CurrentRate

	// single division at the end keeps the intermediate product exact
	borrowCost := position.Mul(rate).Mul(decimal.NewFromInt(int64(loanDays))).Div(daysPerYear)
	markup := borrowCost.Mul(client.MarkupPercentage).Div(hundred)

	var transactionFees decimal.Decimal
	switch client.FeeType {
	case domain.FeeFlat:
		transactionFees = client.TransactionAmount
	case domain.FeePercentage:
		transactionFees = position.Mul(client.TransactionAmount).Div(hundred)
	default:
		return domain.FeeBreakdown{}, fmt.Errorf("client %s has fee type %q: %w",
			client.ClientID, client.FeeType, domain.ErrCalculation)
	}

	components, total, err := money.ReconcileSum([]decimal.Decimal{borrowCost, markup, transactionFees})
	if err != nil {
		return domain.FeeBreakdown{}, fmt.Errorf("breakdown for %s: %v: %w",
			resolved.Ticker, err, domain.ErrCalculation)
	}

	return domain.FeeBreakdown{
		BorrowCost:      components[0],
		Markup:          components[1],
		TransactionFees: components[2],
		TotalFee:        total,
		BorrowRateUsed:  rate,
	}, nil
}
