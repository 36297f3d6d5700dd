package common

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is an immutable record of a single fill (spec.md §3). Invariant:
// BuyerID != SellerID (no self-trades ever reach a Trade record).
type Trade struct {
	ID                 uuid.UUID
	Price              decimal.Decimal
	Size               decimal.Decimal
	Timestamp          time.Time
	BuyerID            uuid.UUID
	SellerID           uuid.UUID
	BuyerOrderID       uuid.UUID
	SellerOrderID      uuid.UUID
	BuyerLeverage      int
	SellerLeverage     int
	BuyerEffect        PositionEffect
	SellerEffect       PositionEffect
	BuyerNewPosition   decimal.Decimal
	SellerNewPosition  decimal.Decimal
	AggressorSide      Side
}
