// Package audit captures one record per fee calculation and ships it to a
// configurable sink without ever blocking the calculation path.
package audit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lendpool/locator/internal/domain"
)

// Record is the audit trail entry for a single locate fee calculation.
// Provenance distinguishes fully live pricing from degraded pricing so a
// reviewer can tell which figures came from substituted inputs.
type Record struct {
	RequestID      string              `json:"request_id"`
	ClientID       string              `json:"client_id"`
	Ticker         string              `json:"ticker"`
	PositionValue  decimal.Decimal     `json:"position_value"`
	LoanDays       int                 `json:"loan_days"`
	BorrowRateUsed decimal.Decimal     `json:"borrow_rate_used"`
	Provenance     domain.Provenance   `json:"provenance"`
	Breakdown      domain.FeeBreakdown `json:"breakdown"`
	Formula        string              `json:"formula"`
	Timestamp      time.Time           `json:"timestamp"`
}
