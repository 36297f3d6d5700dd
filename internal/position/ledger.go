// Package position implements the position-update rule and liquidation
// price derivation of spec.md §4.2/§4.3. It is stateless apart from the
// Position records themselves: Apply takes a position and a fill and
// returns the updated position plus the classification needed to tag the
// resulting trade.
package position

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rindex/internal/common"
)

// Fill is the signed delta applied to a position by one leg of a trade.
type Fill struct {
	Delta    decimal.Decimal // positive for a buyer leg, negative for a seller leg
	Price    decimal.Decimal
	Leverage int
}

// Result carries what the caller (matching engine or liquidation monitor)
// needs after applying a fill: the position's new state (nil if it went
// flat, per invariant I1), the effect to tag on the trade, and the
// realized P&L delta contributed by this fill alone.
type Result struct {
	Position    *common.Position
	Effect      common.PositionEffect
	RealizedPnL decimal.Decimal
	Flipped     bool
}

// classify implements spec.md §4.2's effect rule: open if flat or same
// sign as the delta, close if opposite sign.
func classify(oldSize, delta decimal.Decimal) common.PositionEffect {
	if oldSize.IsZero() || oldSize.Sign() == delta.Sign() {
		return common.Open
	}
	return common.Close
}

// MarginFunc computes the maintenance-margin fraction for a leverage
// value (spec.md §4.4's tier lookup), supplied by the caller so this
// package stays free of configuration concerns.
type MarginFunc func(leverage int) decimal.Decimal

// Apply runs the §4.2 update rule against the existing position pos (nil
// if the trader is currently flat) for the given fill. traderID/instrument
// key the returned position; now is the timestamp it is stamped with.
func Apply(pos *common.Position, traderID uuid.UUID, instrument string, fill Fill, maintMargin MarginFunc, now time.Time) Result {
	oldSize := decimal.Zero
	oldEntry := decimal.Zero
	oldLeverage := fill.Leverage
	oldRealized := decimal.Zero
	if pos != nil {
		oldSize = pos.Size
		oldEntry = pos.EntryPrice
		oldLeverage = pos.Leverage
		oldRealized = pos.RealizedPnL
	}

	effect := classify(oldSize, fill.Delta)
	newSize := oldSize.Add(fill.Delta)

	var newEntry decimal.Decimal
	var realizedDelta decimal.Decimal
	var leverage int
	flipped := false

	if effect == common.Open {
		// Rule 1: opening or adding. Flat->non-flat resets entry to the
		// fill price; adding to an existing position weight-averages it.
		if oldSize.IsZero() {
			newEntry = fill.Price
			leverage = fill.Leverage
		} else {
			newEntry = weightedAverage(oldSize, oldEntry, fill.Delta, fill.Price)
			leverage = oldLeverage // spec.md §9: keep existing leverage on adds
		}
	} else {
		// Rule 2/3: reducing or flipping.
		closed := minAbs(oldSize, fill.Delta)
		if oldSize.Sign() > 0 {
			realizedDelta = fill.Price.Sub(oldEntry).Mul(closed)
		} else {
			realizedDelta = oldEntry.Sub(fill.Price).Mul(closed)
		}

		if newSize.Sign() != 0 && newSize.Sign() == fill.Delta.Sign() {
			// Overshoot: the fill was bigger than the resting position, so
			// the position flips sign. Entry resets to the fill price for
			// the residual (invariant I3).
			flipped = true
			newEntry = fill.Price
			leverage = fill.Leverage
		} else {
			newEntry = oldEntry
			leverage = oldLeverage
		}
	}

	if newSize.IsZero() {
		return Result{Position: nil, Effect: effect, RealizedPnL: realizedDelta, Flipped: flipped}
	}

	notional := newSize.Abs().Mul(newEntry)
	margin := decimal.Zero
	if leverage > 0 {
		margin = notional.Div(decimal.NewFromInt(int64(leverage)))
	}

	newPos := &common.Position{
		TraderID:    traderID,
		Instrument:  instrument,
		Size:        newSize,
		EntryPrice:  newEntry,
		Leverage:    leverage,
		Margin:      margin,
		RealizedPnL: oldRealized.Add(realizedDelta),
		UpdatedAt:   now,
	}
	if maintMargin != nil {
		newPos.LiquidationPrice = LiquidationPrice(newPos, maintMargin(leverage))
	}

	return Result{Position: newPos, Effect: effect, RealizedPnL: realizedDelta, Flipped: flipped}
}

func weightedAverage(oldSize, oldEntry, delta, price decimal.Decimal) decimal.Decimal {
	newSize := oldSize.Add(delta)
	if newSize.IsZero() {
		return decimal.Zero
	}
	num := oldSize.Mul(oldEntry).Add(delta.Mul(price))
	return num.Div(newSize)
}

// minAbs returns the smaller of |a| and |b|, used to find the quantity
// closed when a reducing/flipping fill is applied.
func minAbs(a, b decimal.Decimal) decimal.Decimal {
	aa, ab := a.Abs(), b.Abs()
	if aa.Cmp(ab) <= 0 {
		return aa
	}
	return ab
}

// LiquidationPrice implements the formula in spec.md §4.4:
//
//	distance = entry/leverage * (1 - maintMargin)
//	liq      = entry - distance   (long)
//	           entry + distance   (short)
func LiquidationPrice(pos *common.Position, maintMargin decimal.Decimal) decimal.Decimal {
	if pos.IsFlat() || pos.Leverage <= 0 {
		return decimal.Zero
	}
	distance := pos.EntryPrice.Div(decimal.NewFromInt(int64(pos.Leverage))).Mul(decimal.NewFromInt(1).Sub(maintMargin))
	if pos.IsLong() {
		return pos.EntryPrice.Sub(distance)
	}
	return pos.EntryPrice.Add(distance)
}

// Triggered reports whether mark crosses pos's liquidation price
// (spec.md §4.4's trigger rule).
func Triggered(pos *common.Position, mark decimal.Decimal) bool {
	if pos.IsFlat() {
		return false
	}
	if pos.IsLong() {
		return mark.Cmp(pos.LiquidationPrice) <= 0
	}
	return mark.Cmp(pos.LiquidationPrice) >= 0
}
