package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"rindex/internal/common"
)

// memStore is an in-memory Store used by kernel/liquidation unit tests so
// they exercise the real persistence contract without a filesystem-backed
// sqlite handle.
type memStore struct {
	mu           sync.Mutex
	traders      map[uuid.UUID]common.Trader
	positions    map[string]common.Position // key: traderID.String()+"|"+instrument
	orders       map[uuid.UUID]common.Order
	trades       []common.Trade
	liquidations []common.Liquidation
	stats        map[string]MarketStats
}

// NewMemStore constructs an empty in-memory Store.
func NewMemStore() Store {
	return &memStore{
		traders:   make(map[uuid.UUID]common.Trader),
		positions: make(map[string]common.Position),
		orders:    make(map[uuid.UUID]common.Order),
		stats:     make(map[string]MarketStats),
	}
}

func posKey(traderID uuid.UUID, instrument string) string {
	return traderID.String() + "|" + instrument
}

func (m *memStore) UpsertTrader(t common.Trader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traders[t.ID] = t
	return nil
}

func (m *memStore) GetTrader(id uuid.UUID) (common.Trader, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.traders[id]
	return t, ok, nil
}

func (m *memStore) GetTraderByUsername(username string) (common.Trader, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.traders {
		if t.Username == username {
			return t, true, nil
		}
	}
	return common.Trader{}, false, nil
}

func (m *memStore) ListTraders() ([]common.Trader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]common.Trader, 0, len(m.traders))
	for _, t := range m.traders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *memStore) UpsertPosition(p common.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[posKey(p.TraderID, p.Instrument)] = p
	return nil
}

func (m *memStore) DeletePosition(traderID uuid.UUID, instrument string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, posKey(traderID, instrument))
	return nil
}

func (m *memStore) GetPosition(traderID uuid.UUID, instrument string) (common.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[posKey(traderID, instrument)]
	return p, ok, nil
}

func (m *memStore) ListPositionsByInstrument(instrument string) ([]common.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []common.Position
	for _, p := range m.positions {
		if p.Instrument == instrument {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TraderID.String() < out[j].TraderID.String() })
	return out, nil
}

func (m *memStore) ListPositionsByTrader(traderID uuid.UUID) ([]common.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []common.Position
	for _, p := range m.positions {
		if p.TraderID == traderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) InsertOrder(o common.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *memStore) UpdateOrderFill(o common.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *memStore) DeleteOrder(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
	return nil
}

func (m *memStore) ListOpenOrders(instrument string) ([]common.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []common.Order
	for _, o := range m.orders {
		if o.Status.Resting() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) InsertTrade(t common.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *memStore) ListRecentTrades(instrument string, limit int) ([]common.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]common.Trade, 0, limit)
	for i := len(m.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.trades[i])
	}
	return out, nil
}

func (m *memStore) ListTraderTrades(traderID uuid.UUID, instrument string, limit int) ([]common.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]common.Trade, 0, limit)
	for i := len(m.trades) - 1; i >= 0 && len(out) < limit; i-- {
		tr := m.trades[i]
		if tr.BuyerID == traderID || tr.SellerID == traderID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (m *memStore) InsertLiquidation(l common.Liquidation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liquidations = append(m.liquidations, l)
	return nil
}

func (m *memStore) ListRecentLiquidations(instrument string, limit int) ([]common.Liquidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]common.Liquidation, 0, limit)
	for i := len(m.liquidations) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.liquidations[i])
	}
	return out, nil
}

func (m *memStore) UpsertMarketStats(s MarketStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[s.Instrument] = s
	return nil
}

func (m *memStore) GetMarketStats(instrument string) (MarketStats, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[instrument]
	return s, ok, nil
}

func (m *memStore) ApplyFill(instrument string, fw FillWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trades = append(m.trades, fw.Trade)
	m.orders[fw.AggressorOrder.ID] = fw.AggressorOrder
	if fw.RestingOrderFilled {
		delete(m.orders, fw.RestingOrder.ID)
	} else {
		m.orders[fw.RestingOrder.ID] = fw.RestingOrder
	}

	if fw.BuyerPositionFlat {
		delete(m.positions, posKey(fw.Trade.BuyerID, instrument))
	} else if fw.BuyerPosition != nil {
		m.positions[posKey(fw.BuyerPosition.TraderID, instrument)] = *fw.BuyerPosition
	}
	if fw.SellerPositionFlat {
		delete(m.positions, posKey(fw.Trade.SellerID, instrument))
	} else if fw.SellerPosition != nil {
		m.positions[posKey(fw.SellerPosition.TraderID, instrument)] = *fw.SellerPosition
	}

	m.traders[fw.BuyerTrader.ID] = fw.BuyerTrader
	m.traders[fw.SellerTrader.ID] = fw.SellerTrader
	m.stats[instrument] = MarketStats{Instrument: instrument, LastPrice: fw.Trade.Price, UpdatedAt: fw.Trade.Timestamp}
	return nil
}

func (m *memStore) ApplyLiquidation(instrument string, trader common.Trader, l common.Liquidation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traders[trader.ID] = trader
	delete(m.positions, posKey(l.TraderID, instrument))
	m.liquidations = append(m.liquidations, l)
	return nil
}
