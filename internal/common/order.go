package common

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a resting or already-matched request to buy or sell the
// instrument (spec.md §3).
type Order struct {
	ID         uuid.UUID
	TraderID   uuid.UUID
	Side       Side
	Type       OrderType
	Price      decimal.Decimal // unused for market orders
	Size       decimal.Decimal
	FilledSize decimal.Decimal
	Leverage   int
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RemainingSize is the quantity still unfilled.
func (o *Order) RemainingSize() decimal.Decimal {
	return o.Size.Sub(o.FilledSize)
}

// IsFullyFilled reports whether the order has no remaining size.
func (o *Order) IsFullyFilled() bool {
	return o.RemainingSize().Sign() <= 0
}
