package book_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"rindex/internal/book"
	"rindex/internal/common"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func restingOrder(side common.Side, price, size string) common.Order {
	return common.Order{
		ID:     uuid.New(),
		Side:   side,
		Type:   common.Limit,
		Price:  dec(price),
		Size:   dec(size),
		Status: common.Pending,
	}
}

func TestAdd_CreatesLevelAndAggregatesSize(t *testing.T) {
	b := book.New()
	o1 := restingOrder(common.Buy, "99", "100")
	o2 := restingOrder(common.Buy, "99", "50")
	b.Add(o1)
	b.Add(o2)

	price, size, ok := b.BestBid()
	assert.True(t, ok)
	assert.True(t, price.Equal(dec("99")))
	assert.True(t, size.Equal(dec("150")))
}

func TestBestBidAsk_OrderedByPricePriority(t *testing.T) {
	b := book.New()
	b.Add(restingOrder(common.Buy, "98", "10"))
	b.Add(restingOrder(common.Buy, "99", "10"))
	b.Add(restingOrder(common.Sell, "101", "10"))
	b.Add(restingOrder(common.Sell, "100", "10"))

	bidPrice, _, _ := b.BestBid()
	askPrice, _, _ := b.BestAsk()
	assert.True(t, bidPrice.Equal(dec("99")), "best bid should be the highest price")
	assert.True(t, askPrice.Equal(dec("100")), "best ask should be the lowest price")
}

func TestRemove_PrunesEmptyLevel(t *testing.T) {
	b := book.New()
	o := restingOrder(common.Buy, "99", "10")
	b.Add(o)

	removed, ok := b.Remove(o.ID)
	assert.True(t, ok)
	assert.True(t, removed.Price.Equal(dec("99")))

	_, _, ok = b.BestBid()
	assert.False(t, ok, "level should be pruned once its only order is removed")
}

func TestRemove_UnknownID(t *testing.T) {
	b := book.New()
	_, ok := b.Remove(uuid.New())
	assert.False(t, ok)
}

func TestCrossableLevels_BuyRespectsLimitPrice(t *testing.T) {
	b := book.New()
	b.Add(restingOrder(common.Sell, "100", "10"))
	b.Add(restingOrder(common.Sell, "101", "10"))
	b.Add(restingOrder(common.Sell, "102", "10"))

	levels := b.CrossableLevels(common.Buy, dec("101"))
	assert.Len(t, levels, 2)
	assert.True(t, levels[0].Price.Equal(dec("100")))
	assert.True(t, levels[1].Price.Equal(dec("101")))
}

func TestCrossableLevels_MarketBuyCrossesEverything(t *testing.T) {
	b := book.New()
	b.Add(restingOrder(common.Sell, "100", "10"))
	b.Add(restingOrder(common.Sell, "9999", "10"))

	levels := b.CrossableLevels(common.Buy, book.MaxLimit())
	assert.Len(t, levels, 2)
}

func TestSnapshot_RespectsDepth(t *testing.T) {
	b := book.New()
	for _, p := range []string{"99", "98", "97"} {
		b.Add(restingOrder(common.Buy, p, "1"))
	}

	bids, asks := b.Snapshot(2)
	assert.Len(t, bids, 2)
	assert.Empty(t, asks)
	assert.True(t, bids[0].Price.Equal(dec("99")))
	assert.True(t, bids[1].Price.Equal(dec("98")))
}

func TestLevelOrders_PreservesFIFO(t *testing.T) {
	b := book.New()
	first := restingOrder(common.Buy, "99", "10")
	second := restingOrder(common.Buy, "99", "20")
	b.Add(first)
	b.Add(second)

	bids, _ := b.Snapshot(1)
	assert.True(t, bids[0].TotalSize.Equal(dec("30")))
	assert.Equal(t, 2, bids[0].Count)

	levels := b.CrossableLevels(common.Sell, book.MinLimit())
	if assert.Len(t, levels, 1) {
		orders := levels[0].Orders()
		if assert.Len(t, orders, 2) {
			assert.Equal(t, first.ID, orders[0].ID, "earlier order must stay at the head of the queue")
			assert.Equal(t, second.ID, orders[1].ID)
		}
	}
}
