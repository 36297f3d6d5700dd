package common

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Liquidation is an immutable record of a forced position close
// (spec.md §3). Side is the side of the position being closed: Buy means
// a long was liquidated, Sell means a short was liquidated.
type Liquidation struct {
	ID                uuid.UUID
	TraderID          uuid.UUID
	Side              Side
	Size              decimal.Decimal
	EntryPrice        decimal.Decimal
	LiquidationPrice  decimal.Decimal
	MarkPrice         decimal.Decimal
	Leverage          int
	Loss              decimal.Decimal
	InsuranceFundHit  bool
	Timestamp         time.Time
}
