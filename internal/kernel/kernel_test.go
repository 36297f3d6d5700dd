package kernel

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rindex/internal/common"
	"rindex/internal/config"
	"rindex/internal/hub"
	"rindex/internal/store"
)

func newTestKernel(t *testing.T) (*Kernel, *hub.Hub) {
	t.Helper()
	cfg := config.Default()
	h := hub.New()
	k := New("R.index", cfg, store.NewMemStore(), h)
	return k, h
}

func newTrader(t *testing.T, k *Kernel, username string) common.Trader {
	t.Helper()
	tr := common.Trader{ID: uuid.New(), Username: username, Balance: decimal.NewFromInt(10000), CreatedAt: time.Now().UTC()}
	require.NoError(t, k.RegisterTrader(tr))
	return tr
}

func limitOrder(traderID uuid.UUID, side common.Side, price, size decimal.Decimal, leverage int) common.Order {
	return common.Order{TraderID: traderID, Side: side, Type: common.Limit, Price: price, Size: size, Leverage: leverage}
}

func marketOrder(traderID uuid.UUID, side common.Side, size decimal.Decimal, leverage int) common.Order {
	return common.Order{TraderID: traderID, Side: side, Type: common.Market, Size: size, Leverage: leverage}
}

// Scenario 1: simple crossing.
func TestSubmit_SimpleCrossing(t *testing.T) {
	k, _ := newTestKernel(t)
	a := newTrader(t, k, "alice")
	b := newTrader(t, k, "bob")

	restA, _, err := k.Submit(limitOrder(a.ID, common.Buy, decimal.NewFromInt(100), decimal.NewFromInt(2), 10))
	require.NoError(t, err)

	orderB, trades, err := k.Submit(marketOrder(b.ID, common.Sell, decimal.NewFromInt(1), 10))
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, trades[0].Size.Equal(decimal.NewFromInt(1)))

	assert.Equal(t, common.Filled, orderB.Status)

	restingA, ok := k.ob.Get(restA.ID)
	require.True(t, ok)
	assert.Equal(t, common.Partial, restingA.Status)
	assert.True(t, restingA.FilledSize.Equal(decimal.NewFromInt(1)))

	posA, ok := k.GetPosition(a.ID)
	require.True(t, ok)
	assert.True(t, posA.Size.Equal(decimal.NewFromInt(1)))
	assert.True(t, posA.EntryPrice.Equal(decimal.NewFromInt(100)))

	posB, ok := k.GetPosition(b.ID)
	require.True(t, ok)
	assert.True(t, posB.Size.Equal(decimal.NewFromInt(-1)))
	assert.True(t, posB.EntryPrice.Equal(decimal.NewFromInt(100)))

	assert.True(t, k.GetMarkPrice().Equal(decimal.NewFromInt(100)))
}

// Scenario 2: self-trade skipped.
func TestSubmit_SelfTradeSkipped(t *testing.T) {
	k, _ := newTestKernel(t)
	a := newTrader(t, k, "alice")

	restA, _, err := k.Submit(limitOrder(a.ID, common.Buy, decimal.NewFromInt(100), decimal.NewFromInt(1), 1))
	require.NoError(t, err)

	order, trades, err := k.Submit(marketOrder(a.ID, common.Sell, decimal.NewFromInt(1), 1))
	assert.ErrorIs(t, err, ErrSelfTradeOnly)
	assert.Empty(t, trades)
	assert.Equal(t, common.Cancelled, order.Status)

	unchanged, ok := k.ob.Get(restA.ID)
	require.True(t, ok)
	assert.True(t, unchanged.FilledSize.IsZero())
	assert.Equal(t, common.Pending, unchanged.Status)
}

// Scenario 3: partial resting.
func TestSubmit_PartialResting(t *testing.T) {
	k, _ := newTestKernel(t)
	a := newTrader(t, k, "alice")
	b := newTrader(t, k, "bob")

	restA, _, err := k.Submit(limitOrder(a.ID, common.Buy, decimal.NewFromInt(100), decimal.NewFromInt(5), 1))
	require.NoError(t, err)

	orderB, trades, err := k.Submit(limitOrder(b.ID, common.Sell, decimal.NewFromInt(99), decimal.NewFromInt(3), 1))
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(100)), "resting-price rule: trade price follows the resting buy, not the aggressor's limit")
	assert.True(t, trades[0].Size.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, common.Filled, orderB.Status)

	restingA, ok := k.ob.Get(restA.ID)
	require.True(t, ok)
	assert.Equal(t, common.Partial, restingA.Status)
	assert.True(t, restingA.FilledSize.Equal(decimal.NewFromInt(3)))
	assert.True(t, restingA.RemainingSize().Equal(decimal.NewFromInt(2)))
}

// Scenario 4: flip preserves realized pnl and resets entry.
func TestSubmit_Flip(t *testing.T) {
	k, _ := newTestKernel(t)
	a := newTrader(t, k, "alice")
	b := newTrader(t, k, "bob")

	// Build A's +2 @ 100 long via a simple cross against B.
	_, _, err := k.Submit(limitOrder(b.ID, common.Sell, decimal.NewFromInt(100), decimal.NewFromInt(2), 5))
	require.NoError(t, err)
	_, trades, err := k.Submit(marketOrder(a.ID, common.Buy, decimal.NewFromInt(2), 5))
	require.NoError(t, err)
	require.Len(t, trades, 1)

	posA, ok := k.GetPosition(a.ID)
	require.True(t, ok)
	require.True(t, posA.Size.Equal(decimal.NewFromInt(2)))
	require.True(t, posA.EntryPrice.Equal(decimal.NewFromInt(100)))

	// B rests a buy at 110 size 3; A sells 3 at limit 110, flipping from +2 to -1.
	_, _, err = k.Submit(limitOrder(b.ID, common.Buy, decimal.NewFromInt(110), decimal.NewFromInt(3), 5))
	require.NoError(t, err)
	_, trades, err = k.Submit(limitOrder(a.ID, common.Sell, decimal.NewFromInt(110), decimal.NewFromInt(3), 5))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(110)))
	assert.True(t, trades[0].Size.Equal(decimal.NewFromInt(3)))

	posA, ok = k.GetPosition(a.ID)
	require.True(t, ok)
	assert.True(t, posA.Size.Equal(decimal.NewFromInt(-1)), "expected flip to short 1")
	assert.True(t, posA.EntryPrice.Equal(decimal.NewFromInt(110)), "P6: flip resets entry to fill price")
	assert.True(t, posA.RealizedPnL.Equal(decimal.NewFromInt(20)), "(110-100)*2 = 20")
}

// Scenario 5 / 6 groundwork is covered in internal/position and
// internal/liquidation; here we only verify the open interest the kernel
// reports (both legs of the trade count).
func TestGetOpenInterest(t *testing.T) {
	k, _ := newTestKernel(t)
	a := newTrader(t, k, "alice")
	b := newTrader(t, k, "bob")

	_, _, err := k.Submit(limitOrder(b.ID, common.Sell, decimal.NewFromInt(100), decimal.NewFromInt(4), 10))
	require.NoError(t, err)
	_, _, err = k.Submit(marketOrder(a.ID, common.Buy, decimal.NewFromInt(4), 10))
	require.NoError(t, err)

	oi := k.GetOpenInterest()
	assert.True(t, oi.TotalOI.Equal(decimal.NewFromInt(8)), "|+4| + |-4| = 8")
	assert.Equal(t, 1, oi.LongPositions)
	assert.Equal(t, 1, oi.ShortPositions)
}

func TestCancel_RemovesRestingOrder(t *testing.T) {
	k, _ := newTestKernel(t)
	a := newTrader(t, k, "alice")

	order, _, err := k.Submit(limitOrder(a.ID, common.Buy, decimal.NewFromInt(100), decimal.NewFromInt(1), 1))
	require.NoError(t, err)

	cancelled, err := k.Cancel(order.ID)
	require.NoError(t, err)
	assert.Equal(t, common.Cancelled, cancelled.Status)

	_, err = k.Cancel(order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmit_UnknownTraderRejected(t *testing.T) {
	k, _ := newTestKernel(t)
	_, _, err := k.Submit(limitOrder(uuid.New(), common.Buy, decimal.NewFromInt(100), decimal.NewFromInt(1), 1))
	assert.ErrorIs(t, err, ErrUnknownTrader)
}

func TestSubmit_InvalidLeverageRejected(t *testing.T) {
	k, _ := newTestKernel(t)
	a := newTrader(t, k, "alice")
	_, _, err := k.Submit(limitOrder(a.ID, common.Buy, decimal.NewFromInt(100), decimal.NewFromInt(1), 0))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, _, err = k.Submit(limitOrder(a.ID, common.Buy, decimal.NewFromInt(100), decimal.NewFromInt(1), k.cfg.MaxLeverage+1))
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

// P4: best-price crossing — the aggressor never gets a worse price than
// the best available on entry, and fill prices move monotonically across
// levels as the aggressor walks deeper into the book.
func TestSubmit_PriceTimePriorityAcrossLevels(t *testing.T) {
	k, _ := newTestKernel(t)
	sellers := []common.Trader{newTrader(t, k, "s1"), newTrader(t, k, "s2")}
	buyer := newTrader(t, k, "buyer")

	_, _, err := k.Submit(limitOrder(sellers[0].ID, common.Sell, decimal.NewFromInt(101), decimal.NewFromInt(1), 1))
	require.NoError(t, err)
	_, _, err = k.Submit(limitOrder(sellers[1].ID, common.Sell, decimal.NewFromInt(100), decimal.NewFromInt(1), 1))
	require.NoError(t, err)

	_, trades, err := k.Submit(marketOrder(buyer.ID, common.Buy, decimal.NewFromInt(2), 1))
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(100)), "best ask (100) fills before the worse one (101)")
	assert.True(t, trades[1].Price.Equal(decimal.NewFromInt(101)))
}
