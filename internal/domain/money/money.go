// Package money fixes the rounding rules for the pricing pipeline: rates
// carry four decimal places, dollar amounts two, both rounded half-even, and
// rounding happens only at the edge of a calculation, never mid-pipeline.
package money

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	// RateScale is the published precision for borrow rates
	RateScale = 4
	// USDScale is the published precision for dollar amounts
	USDScale = 2
)

var cent = decimal.New(1, -USDScale)

// RoundRate rounds a rate to four decimal places, ties to even
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(RateScale)
}

// RoundUSD rounds a dollar amount to cents, ties to even
func RoundUSD(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(USDScale)
}

// ReconcileSum rounds each exact component to cents and forces the rounded
// figures to sum to the rounded exact total. Half-even drift leaves at most
// one residual cent per component; residual cents are folded into the largest
// components first, one cent each. The returned total always equals the sum
// of the returned components.
func ReconcileSum(exact []decimal.Decimal) ([]decimal.Decimal, decimal.Decimal, error) {
	if len(exact) == 0 {
		return nil, decimal.Zero, nil
	}

	rounded := make([]decimal.Decimal, len(exact))
	exactTotal := decimal.Zero
	roundedSum := decimal.Zero
	for i, e := range exact {
		rounded[i] = RoundUSD(e)
		exactTotal = exactTotal.Add(e)
		roundedSum = roundedSum.Add(rounded[i])
	}

	target := RoundUSD(exactTotal)
	residual := target.Sub(roundedSum)
	if residual.IsZero() {
		return rounded, target, nil
	}

	step := cent
	if residual.IsNegative() {
		step = cent.Neg()
	}

	order := make([]int, len(rounded))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rounded[order[a]].GreaterThan(rounded[order[b]])
	})

	for _, idx := range order {
		if residual.IsZero() {
			break
		}
		rounded[idx] = rounded[idx].Add(step)
		residual = residual.Sub(step)
	}
	if !residual.IsZero() {
		return nil, decimal.Zero, fmt.Errorf("rounding residual %s exceeds one cent per component", residual)
	}
	return rounded, target, nil
}
