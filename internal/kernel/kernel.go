// Package kernel implements the matching engine (spec.md §4.3): the single
// synchronous authority that accepts orders, executes matches, mutates
// positions, persists, and emits events. It is the only mutator of the
// order book and position ledger, generalizing the teacher's
// internal/engine.Engine (which only stubbed Trade/PlaceOrder with FIXMEs)
// into a complete matching loop with self-trade prevention, position
// accounting, and durable writes.
package kernel

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	bookpkg "rindex/internal/book"
	"rindex/internal/common"
	"rindex/internal/config"
	"rindex/internal/hub"
	"rindex/internal/money"
	"rindex/internal/position"
	"rindex/internal/store"
)

// Kernel is the matching engine for one instrument.
type Kernel struct {
	instrument string
	cfg        config.Config

	mu sync.RWMutex // exclusive for Submit/Cancel/forced-close, shared for reads (spec.md §5)

	ob        *bookpkg.Book
	positions map[uuid.UUID]*common.Position
	traders   map[uuid.UUID]*common.Trader

	fund *common.InsuranceFund

	markPrice decimal.Decimal

	trades       *tradeRing
	liquidations *liquidationRing

	store store.Store
	hub   *hub.Hub
}

// New constructs a Kernel for instrument, wired to the given store and
// event hub. Callers should follow New with Recover to restore durable
// state before serving traffic (spec.md §4.3.6).
func New(instrument string, cfg config.Config, st store.Store, h *hub.Hub) *Kernel {
	return &Kernel{
		instrument:   instrument,
		cfg:          cfg,
		ob:           bookpkg.New(),
		positions:    make(map[uuid.UUID]*common.Position),
		traders:      make(map[uuid.UUID]*common.Trader),
		fund:         common.NewInsuranceFund(cfg.InsuranceFundInitial),
		markPrice:    cfg.InitialMarkPrice,
		trades:       newTradeRing(maxInt(cfg.RecentTradesCapacity, 1000)),
		liquidations: newLiquidationRing(1000),
		store:        st,
		hub:          h,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (k *Kernel) maintMarginFor(leverage int) decimal.Decimal {
	return k.cfg.MarginFor(leverage)
}

// Fund exposes the insurance fund for the liquidation monitor.
func (k *Kernel) Fund() *common.InsuranceFund {
	return k.fund
}

// Instrument returns the instrument this kernel serves.
func (k *Kernel) Instrument() string {
	return k.instrument
}

// Recover reloads durable state at startup in the order spec.md §4.3.6
// requires: traders, then positions (so liquidation prices can be
// recomputed against current config), then the most recent trades and
// liquidations into the in-memory rings, then resting orders back into
// the book.
func (k *Kernel) Recover() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	traders, err := k.store.ListTraders()
	if err != nil {
		return fmt.Errorf("kernel: recover traders: %w", err)
	}
	for i := range traders {
		t := traders[i]
		k.traders[t.ID] = &t
	}

	positions, err := k.store.ListPositionsByInstrument(k.instrument)
	if err != nil {
		return fmt.Errorf("kernel: recover positions: %w", err)
	}
	for i := range positions {
		p := positions[i]
		p.LiquidationPrice = position.LiquidationPrice(&p, k.maintMarginFor(p.Leverage))
		k.positions[p.TraderID] = &p
	}

	trades, err := k.store.ListRecentTrades(k.instrument, k.trades.Capacity())
	if err != nil {
		return fmt.Errorf("kernel: recover trades: %w", err)
	}
	for i := len(trades) - 1; i >= 0; i-- {
		k.trades.Push(trades[i])
	}
	if len(trades) > 0 {
		k.markPrice = trades[0].Price
	}

	liquidations, err := k.store.ListRecentLiquidations(k.instrument, k.liquidations.Capacity())
	if err != nil {
		return fmt.Errorf("kernel: recover liquidations: %w", err)
	}
	for i := len(liquidations) - 1; i >= 0; i-- {
		k.liquidations.Push(liquidations[i])
	}

	orders, err := k.store.ListOpenOrders(k.instrument)
	if err != nil {
		return fmt.Errorf("kernel: recover resting orders: %w", err)
	}
	for _, o := range orders {
		k.ob.Add(o)
	}

	log.Info().Int("traders", len(traders)).Int("positions", len(positions)).
		Int("restingOrders", len(orders)).Msg("kernel: recovered durable state")
	return nil
}

// RegisterTrader idempotently upserts a trader (spec.md §6).
func (k *Kernel) RegisterTrader(t common.Trader) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	cp := t
	k.traders[t.ID] = &cp
	return k.store.UpsertTrader(t)
}

// Submit implements the order intake contract of spec.md §4.3.1.
func (k *Kernel) Submit(order common.Order) (common.Order, []common.Trade, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.traders[order.TraderID]; !ok {
		return common.Order{}, nil, ErrUnknownTrader
	}
	if order.Size.Sign() <= 0 {
		return common.Order{}, nil, ErrInvalidOrder
	}
	if order.Leverage < 1 || order.Leverage > k.cfg.MaxLeverage {
		return common.Order{}, nil, ErrInvalidOrder
	}
	if order.Type == common.Limit && order.Price.Sign() <= 0 {
		return common.Order{}, nil, ErrInvalidOrder
	}

	now := time.Now().UTC()
	order.ID = uuid.New()
	order.FilledSize = decimal.Zero
	order.Status = common.Pending
	order.CreatedAt = now
	order.UpdatedAt = now

	trades, selfTradeOnly, err := k.matchOrder(&order, now)
	if err != nil {
		return order, trades, err
	}

	remaining := order.RemainingSize()
	switch order.Type {
	case common.Limit:
		if remaining.Sign() > 0 {
			if order.FilledSize.Sign() > 0 {
				order.Status = common.Partial
			} else {
				order.Status = common.Pending
			}
			k.ob.Add(order)
			if err := k.store.InsertOrder(order); err != nil {
				log.Error().Err(err).Msg("kernel: failed to persist resting order")
				return order, trades, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
			}
		} else {
			order.Status = common.Filled
		}
	case common.Market:
		if remaining.Sign() > 0 {
			order.Status = common.Cancelled
		} else {
			order.Status = common.Filled
		}
	}

	k.hub.Emit(hub.Event{Type: hub.OrderEvent, Data: order, TimestampMS: now.UnixMilli()})

	if order.Type == common.Market && len(trades) == 0 && selfTradeOnly {
		return order, trades, ErrSelfTradeOnly
	}
	return order, trades, nil
}

// matchOrder runs the crossing loop of spec.md §4.3.2 against the book,
// executing a fill for every crossable queue entry not owned by the
// aggressor (self-trade prevention), in strict price-time priority.
func (k *Kernel) matchOrder(order *common.Order, now time.Time) (trades []common.Trade, selfTradeOnly bool, err error) {
	limitPrice := order.Price
	if order.Type == common.Market {
		if order.Side == common.Buy {
			limitPrice = bookpkg.MaxLimit()
		} else {
			limitPrice = bookpkg.MinLimit()
		}
	}

	remaining := order.RemainingSize()
	sawSelfTrade := false

	levels := k.ob.CrossableLevels(order.Side, limitPrice)
	for _, lvl := range levels {
		if remaining.Sign() <= 0 {
			break
		}
		for _, id := range orderIDs(lvl) {
			if remaining.Sign() <= 0 {
				break
			}
			resting, ok := k.ob.Get(id)
			if !ok {
				continue // already consumed earlier in this same submit
			}
			if resting.TraderID == order.TraderID {
				sawSelfTrade = true
				continue // self-trade prevention (spec.md §4.3.2)
			}

			fillSize := money.Min(remaining, resting.RemainingSize())
			price := resting.Price // spec.md §4.3.2: trade price is always the resting order's price

			order.FilledSize = order.FilledSize.Add(fillSize)
			order.UpdatedAt = now

			resting.FilledSize = resting.FilledSize.Add(fillSize)
			resting.UpdatedAt = now
			fullyFilled := resting.IsFullyFilled()
			if fullyFilled {
				resting.Status = common.Filled
			} else {
				resting.Status = common.Partial
			}

			trade, ferr := k.executeFill(order, &resting, price, fillSize, now, fullyFilled)
			if ferr != nil {
				return trades, sawSelfTrade, ferr
			}
			trades = append(trades, trade)
			remaining = remaining.Sub(fillSize)

			k.ob.UpdateRemaining(id, fillSize)
			if fullyFilled {
				k.ob.Remove(id)
			}
		}
	}
	return trades, sawSelfTrade, nil
}

// orderIDs snapshots the FIFO order ids at a level at the moment the
// matching loop enters it; safe because the kernel lock prevents any
// concurrent insertion into the book while a submit is in flight.
func orderIDs(lvl *bookpkg.Level) []uuid.UUID {
	orders := lvl.Orders()
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}

// executeFill implements spec.md §4.3.3: classify effects, update both
// positions, synthesize the trade, persist atomically, and emit events.
func (k *Kernel) executeFill(order, resting *common.Order, price, size decimal.Decimal, now time.Time, restingFullyFilled bool) (common.Trade, error) {
	var buyerOrder, sellerOrder *common.Order
	if order.Side == common.Buy {
		buyerOrder, sellerOrder = order, resting
	} else {
		buyerOrder, sellerOrder = resting, order
	}

	buyerResult := position.Apply(k.positions[buyerOrder.TraderID], buyerOrder.TraderID, k.instrument,
		position.Fill{Delta: size, Price: price, Leverage: buyerOrder.Leverage}, k.maintMarginFor, now)
	sellerResult := position.Apply(k.positions[sellerOrder.TraderID], sellerOrder.TraderID, k.instrument,
		position.Fill{Delta: size.Neg(), Price: price, Leverage: sellerOrder.Leverage}, k.maintMarginFor, now)

	if buyerResult.Position == nil {
		delete(k.positions, buyerOrder.TraderID)
	} else {
		k.positions[buyerOrder.TraderID] = buyerResult.Position
	}
	if sellerResult.Position == nil {
		delete(k.positions, sellerOrder.TraderID)
	} else {
		k.positions[sellerOrder.TraderID] = sellerResult.Position
	}

	trade := common.Trade{
		ID:                uuid.New(),
		Price:             price,
		Size:              size,
		Timestamp:         now,
		BuyerID:           buyerOrder.TraderID,
		SellerID:          sellerOrder.TraderID,
		BuyerOrderID:      buyerOrder.ID,
		SellerOrderID:     sellerOrder.ID,
		BuyerLeverage:     buyerOrder.Leverage,
		SellerLeverage:    sellerOrder.Leverage,
		BuyerEffect:       buyerResult.Effect,
		SellerEffect:      sellerResult.Effect,
		BuyerNewPosition:  positionSize(buyerResult.Position),
		SellerNewPosition: positionSize(sellerResult.Position),
		AggressorSide:     order.Side,
	}
	k.trades.Push(trade)
	k.markPrice = price

	buyerTrader := k.traders[buyerOrder.TraderID]
	sellerTrader := k.traders[sellerOrder.TraderID]
	buyerTrader.TradeCount++
	sellerTrader.TradeCount++
	buyerTrader.RaiseMaxLeverage(buyerOrder.Leverage)
	sellerTrader.RaiseMaxLeverage(sellerOrder.Leverage)
	buyerTrader.TotalPnL = buyerTrader.TotalPnL.Add(buyerResult.RealizedPnL)
	sellerTrader.TotalPnL = sellerTrader.TotalPnL.Add(sellerResult.RealizedPnL)

	fw := store.FillWrite{
		Trade:              trade,
		AggressorOrder:     *order,
		RestingOrder:       *resting,
		RestingOrderFilled: restingFullyFilled,
		BuyerPosition:      buyerResult.Position,
		BuyerPositionFlat:  buyerResult.Position == nil,
		SellerPosition:     sellerResult.Position,
		SellerPositionFlat: sellerResult.Position == nil,
		BuyerTrader:        *buyerTrader,
		SellerTrader:       *sellerTrader,
	}
	if err := k.store.ApplyFill(k.instrument, fw); err != nil {
		log.Error().Err(err).Str("tradeID", trade.ID.String()).Msg("kernel: failed to persist fill")
		return trade, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	ts := now.UnixMilli()
	k.hub.Emit(hub.Event{Type: hub.TradeEvent, Data: trade, TimestampMS: ts})
	if buyerResult.Position != nil {
		k.hub.Emit(hub.Event{Type: hub.PositionEvent, Data: *buyerResult.Position, TimestampMS: ts})
	}
	if sellerResult.Position != nil {
		k.hub.Emit(hub.Event{Type: hub.PositionEvent, Data: *sellerResult.Position, TimestampMS: ts})
	}
	k.hub.Emit(hub.Event{Type: hub.OrderEvent, Data: *resting, TimestampMS: ts})

	return trade, nil
}

func positionSize(p *common.Position) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Size
}

// Cancel implements spec.md §4.3.4: remove a resting order from the book.
func (k *Kernel) Cancel(orderID uuid.UUID) (common.Order, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	order, ok := k.ob.Remove(orderID)
	if !ok {
		return common.Order{}, ErrNotFound
	}
	order.Status = common.Cancelled
	order.UpdatedAt = time.Now().UTC()

	if err := k.store.DeleteOrder(order.ID); err != nil {
		log.Error().Err(err).Msg("kernel: failed to persist cancellation")
		return order, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	k.hub.Emit(hub.Event{Type: hub.OrderEvent, Data: order, TimestampMS: order.UpdatedAt.UnixMilli()})
	return order, nil
}

// GetMarkPrice returns the authoritative mark price (spec.md §4.3.5):
// the last trade price, or the configured initial value if no trade has
// occurred yet.
func (k *Kernel) GetMarkPrice() decimal.Decimal {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.markPrice
}

// GetOrderBook returns the top-depth levels of each side (spec.md §6).
func (k *Kernel) GetOrderBook(depth int) (bids, asks []bookpkg.LevelSnapshot) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.ob.Snapshot(depth)
}

// GetPosition returns the trader's position, or false if flat/absent.
func (k *Kernel) GetPosition(traderID uuid.UUID) (common.Position, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	p, ok := k.positions[traderID]
	if !ok {
		return common.Position{}, false
	}
	return *p, true
}

// GetAllPositions returns every non-flat position, sorted by trader id for
// deterministic output.
func (k *Kernel) GetAllPositions() []common.Position {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]common.Position, 0, len(k.positions))
	for _, p := range k.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TraderID.String() < out[j].TraderID.String() })
	return out
}

// GetTrader returns the trader by id.
func (k *Kernel) GetTrader(id uuid.UUID) (common.Trader, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	t, ok := k.traders[id]
	if !ok {
		return common.Trader{}, false
	}
	return *t, true
}

// GetAllTraders returns every registered trader.
func (k *Kernel) GetAllTraders() []common.Trader {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]common.Trader, 0, len(k.traders))
	for _, t := range k.traders {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// GetRecentTrades returns up to limit trades, newest first.
func (k *Kernel) GetRecentTrades(limit int) []common.Trade {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.trades.Recent(limit)
}

// GetTraderTrades returns up to limit trades involving traderID, newest
// first, drawn from the in-memory ring (bounded, like GetRecentTrades).
func (k *Kernel) GetTraderTrades(traderID uuid.UUID, limit int) []common.Trade {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]common.Trade, 0, limit)
	for _, t := range k.trades.All() {
		if len(out) >= limit {
			break
		}
		if t.BuyerID == traderID || t.SellerID == traderID {
			out = append(out, t)
		}
	}
	return out
}

// GetRecentLiquidations returns up to limit liquidations, newest first.
func (k *Kernel) GetRecentLiquidations(limit int) []common.Liquidation {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.liquidations.Recent(limit)
}

// OpenInterest is the shape spec.md §6's get_open_interest returns.
type OpenInterest struct {
	TotalOI       decimal.Decimal
	LongPositions int
	ShortPositions int
}

// ForceClose implements spec.md §4.4's forced-close accounting for a
// position the liquidation monitor has determined crossed its liquidation
// price against mark. The loss is funded first from the position's own
// margin; any shortfall is debited from the insurance fund (never letting
// its balance go negative, per P9), and any surplus is credited back to
// it. The trader's balance absorbs the net of margin minus loss, the
// position is deleted, and everything is persisted atomically.
func (k *Kernel) ForceClose(pos common.Position, mark decimal.Decimal) (common.Liquidation, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	live, ok := k.positions[pos.TraderID]
	if !ok || live.IsFlat() {
		return common.Liquidation{}, ErrNotFound
	}
	// Re-check against the latest snapshot rather than the caller's,
	// since GetAllPositions and ForceClose are not called atomically
	// together under one lock acquisition.
	if !position.Triggered(live, mark) {
		return common.Liquidation{}, ErrNotFound
	}
	pos = *live

	loss := decimal.Zero
	if pos.IsLong() {
		loss = pos.EntryPrice.Sub(mark).Mul(pos.Size.Abs())
	} else {
		loss = mark.Sub(pos.EntryPrice).Mul(pos.Size.Abs())
	}
	if loss.Sign() < 0 {
		loss = decimal.Zero
	}

	insuranceHit := false
	shortfall := loss.Sub(pos.Margin)
	if shortfall.Sign() > 0 {
		paid := k.fund.Debit(shortfall) // pays up to balance; any residual beyond that is forgiven (spec.md §4.4)
		if paid.LessThan(shortfall) {
			log.Warn().Str("traderID", pos.TraderID.String()).Str("unpaid", shortfall.Sub(paid).String()).
				Msg("kernel: insurance fund depleted, residual loss forgiven")
		}
		insuranceHit = true
	} else if shortfall.Sign() < 0 {
		k.fund.Credit(shortfall.Neg())
	}

	side := common.Buy
	if !pos.IsLong() {
		side = common.Sell
	}

	now := time.Now().UTC()
	liq := common.Liquidation{
		ID:               uuid.New(),
		TraderID:         pos.TraderID,
		Side:             side,
		Size:             pos.Size.Abs(),
		EntryPrice:       pos.EntryPrice,
		LiquidationPrice: pos.LiquidationPrice,
		MarkPrice:        mark,
		Leverage:         pos.Leverage,
		Loss:             loss,
		InsuranceFundHit: insuranceHit,
		Timestamp:        now,
	}
	k.liquidations.Push(liq)

	trader, ok := k.traders[pos.TraderID]
	if !ok {
		return common.Liquidation{}, ErrUnknownTrader
	}
	net := pos.Margin.Sub(loss)
	trader.Balance = trader.Balance.Add(net)
	trader.TotalPnL = trader.TotalPnL.Sub(loss)
	delete(k.positions, pos.TraderID)

	if err := k.store.ApplyLiquidation(k.instrument, *trader, liq); err != nil {
		log.Error().Err(err).Msg("kernel: failed to persist liquidation")
		return liq, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	ts := now.UnixMilli()
	k.hub.Emit(hub.Event{Type: hub.LiquidationEvent, Data: liq, TimestampMS: ts})

	return liq, nil
}

// GetOpenInterest sums |size| over all non-flat positions (spec.md §4.7).
func (k *Kernel) GetOpenInterest() OpenInterest {
	k.mu.RLock()
	defer k.mu.RUnlock()
	oi := OpenInterest{TotalOI: decimal.Zero}
	for _, p := range k.positions {
		oi.TotalOI = oi.TotalOI.Add(p.Size.Abs())
		if p.IsLong() {
			oi.LongPositions++
		} else {
			oi.ShortPositions++
		}
	}
	return oi
}
