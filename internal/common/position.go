package common

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is keyed by (TraderID, Instrument) (spec.md §3). A Position
// with zero Size must not exist as a record (invariant I1) — callers
// delete it from the store instead of persisting a flat position.
type Position struct {
	TraderID         uuid.UUID
	Instrument       string
	Size             decimal.Decimal // signed: positive long, negative short
	EntryPrice       decimal.Decimal
	Leverage         int
	Margin           decimal.Decimal
	RealizedPnL      decimal.Decimal
	LiquidationPrice decimal.Decimal
	UpdatedAt        time.Time
}

// IsLong reports whether the position is a long (positive size).
func (p *Position) IsLong() bool {
	return p.Size.Sign() > 0
}

// IsFlat reports whether the position has zero size.
func (p *Position) IsFlat() bool {
	return p.Size.Sign() == 0
}

// UnrealizedPnL computes unrealized P&L at the given mark price.
func (p *Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	if p.IsFlat() {
		return decimal.Zero
	}
	diff := mark.Sub(p.EntryPrice)
	if !p.IsLong() {
		diff = diff.Neg()
	}
	return diff.Mul(p.Size.Abs())
}
