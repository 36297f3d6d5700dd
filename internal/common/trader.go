package common

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trader is a participant account (spec.md §3). It is created by the
// authentication collaborator and mutated only by the matching engine and
// the liquidation monitor.
type Trader struct {
	ID              uuid.UUID
	Username        string
	Type            TraderType
	Balance         decimal.Decimal
	TotalPnL        decimal.Decimal
	TradeCount      int64
	MaxLeverageUsed int
	CreatedAt       time.Time
}

// RaiseMaxLeverage bumps MaxLeverageUsed to leverage if it is larger,
// preserving the monotonic-non-decreasing invariant from spec.md §3.
func (t *Trader) RaiseMaxLeverage(leverage int) {
	if leverage > t.MaxLeverageUsed {
		t.MaxLeverageUsed = leverage
	}
}
