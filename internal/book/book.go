// Package book implements the price-indexed order book (spec.md §4.1):
// two btree.BTreeG trees of price levels, each level a FIFO queue of
// resting orders, generalized from the teacher's
// internal/engine/orderbook.go (which used the same tidwall/btree trees
// keyed by float64 price) to decimal prices and an O(1) order-id removal
// index instead of linear slice splicing.
package book

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"rindex/internal/common"
)

// node is one element of a price level's FIFO linked list.
type node struct {
	order      common.Order
	prev, next *node
}

// Level is one price level: the aggregate remaining size and count of a
// FIFO queue of resting orders at a single price (spec.md §3).
type Level struct {
	Price      decimal.Decimal
	TotalSize  decimal.Decimal
	Count      int
	head, tail *node
}

// Orders returns the resting orders at this level in FIFO (time-priority)
// order. The matching engine uses it to walk a level's queue.
func (l *Level) Orders() []common.Order {
	out := make([]common.Order, 0, l.Count)
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.order)
	}
	return out
}

// entry is the book-wide index used for O(1) removal by order id.
type entry struct {
	side  common.Side
	level *Level
	n     *node
}

// Book is the two-sided order book for one instrument (spec.md §3/§4.1).
// It holds no reference back to any matching engine; callers drive it.
type Book struct {
	bids  *btree.BTreeG[*Level]
	asks  *btree.BTreeG[*Level]
	index map[uuid.UUID]entry
}

// New constructs an empty order book: bids ordered highest-first, asks
// ordered lowest-first, exactly the comparator shapes the teacher's
// NewOrderBook used for its two btree.BTreeG trees.
func New() *Book {
	bids := btree.NewBTreeG(func(a, b *Level) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *Level) bool {
		return a.Price.LessThan(b.Price)
	})
	return &Book{
		bids:  bids,
		asks:  asks,
		index: make(map[uuid.UUID]entry),
	}
}

func (b *Book) sideTree(side common.Side) *btree.BTreeG[*Level] {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// Add appends order to the tail of its price level on its side, creating
// the level if absent (spec.md §4.1 "add").
func (b *Book) Add(order common.Order) {
	tree := b.sideTree(order.Side)
	key := &Level{Price: order.Price}
	lvl, ok := tree.GetMut(key)
	if !ok {
		lvl = &Level{Price: order.Price}
		tree.Set(lvl)
	}

	n := &node{order: order}
	if lvl.tail == nil {
		lvl.head, lvl.tail = n, n
	} else {
		n.prev = lvl.tail
		lvl.tail.next = n
		lvl.tail = n
	}
	lvl.Count++
	lvl.TotalSize = lvl.TotalSize.Add(order.RemainingSize())

	b.index[order.ID] = entry{side: order.Side, level: lvl, n: n}
}

// Remove unlinks the order with the given id from the book (spec.md §4.1
// "remove"), decrementing the level's TotalSize/Count and pruning the
// level entirely once empty. Reports whether the order was found.
func (b *Book) Remove(id uuid.UUID) (common.Order, bool) {
	e, ok := b.index[id]
	if !ok {
		return common.Order{}, false
	}
	delete(b.index, id)

	lvl := e.level
	n := e.n
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		lvl.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		lvl.tail = n.prev
	}
	lvl.Count--
	lvl.TotalSize = lvl.TotalSize.Sub(n.order.RemainingSize())

	if lvl.Count == 0 {
		b.sideTree(e.side).Delete(lvl)
	}
	return n.order, true
}

// UpdateRemaining adjusts the book-keeping for a resting order whose
// remaining size shrank by filled (used after a partial fill, instead of
// removing and re-adding the order). It reduces the level's TotalSize,
// adds filled to the tracked order's FilledSize, and marks the tracked
// order Partial while some of it remains.
func (b *Book) UpdateRemaining(id uuid.UUID, filled decimal.Decimal) {
	e, ok := b.index[id]
	if !ok {
		return
	}
	e.level.TotalSize = e.level.TotalSize.Sub(filled)
	e.n.order.FilledSize = e.n.order.FilledSize.Add(filled)
	if !e.n.order.IsFullyFilled() {
		e.n.order.Status = common.Partial
	}
}

// Get returns a copy of the order for id, as currently tracked by the
// book, plus whether it is resting.
func (b *Book) Get(id uuid.UUID) (common.Order, bool) {
	e, ok := b.index[id]
	if !ok {
		return common.Order{}, false
	}
	return e.n.order, true
}

// BestBid returns the top bid level's price and aggregate size.
func (b *Book) BestBid() (decimal.Decimal, decimal.Decimal, bool) {
	lvl, ok := b.bids.Min()
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return lvl.Price, lvl.TotalSize, true
}

// BestAsk returns the top ask level's price and aggregate size.
func (b *Book) BestAsk() (decimal.Decimal, decimal.Decimal, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return lvl.Price, lvl.TotalSize, true
}

// CrossableLevels yields the opposite-side levels that cross limitPrice,
// in best-first (price-priority) order (spec.md §4.1). For a buy at limit
// P, this yields asks with price <= P; for a sell at limit P, bids with
// price >= P. Market orders pass a very large/zero limitPrice via
// MaxLimit/MinLimit below.
func (b *Book) CrossableLevels(side common.Side, limitPrice decimal.Decimal) []*Level {
	var out []*Level
	if side == common.Buy {
		b.asks.Scan(func(lvl *Level) bool {
			if lvl.Price.GreaterThan(limitPrice) {
				return false
			}
			out = append(out, lvl)
			return true
		})
	} else {
		b.bids.Scan(func(lvl *Level) bool {
			if lvl.Price.LessThan(limitPrice) {
				return false
			}
			out = append(out, lvl)
			return true
		})
	}
	return out
}

// MaxLimit is the effective limit price for a market buy (crosses any ask).
func MaxLimit() decimal.Decimal {
	return decimal.NewFromFloat(1e18)
}

// MinLimit is the effective limit price for a market sell (crosses any bid).
func MinLimit() decimal.Decimal {
	return decimal.Zero
}

// LevelSnapshot is one (price, total size, order count) tuple, as returned
// by Snapshot (spec.md §4.1).
type LevelSnapshot struct {
	Price     decimal.Decimal
	TotalSize decimal.Decimal
	Count     int
}

// Snapshot returns the top-depth levels of each side, best-first.
func (b *Book) Snapshot(depth int) (bids, asks []LevelSnapshot) {
	collect := func(tree *btree.BTreeG[*Level]) []LevelSnapshot {
		var levels []LevelSnapshot
		tree.Scan(func(lvl *Level) bool {
			if len(levels) >= depth {
				return false
			}
			levels = append(levels, LevelSnapshot{
				Price:     lvl.Price,
				TotalSize: lvl.TotalSize,
				Count:     lvl.Count,
			})
			return true
		})
		return levels
	}
	return collect(b.bids), collect(b.asks)
}
