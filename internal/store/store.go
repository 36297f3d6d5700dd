// Package store implements the durable persistence contract of spec.md
// §4.5/§6: CRUD for traders, positions, orders, trades, liquidations, and
// market stats, with the atomicity guarantee that a single fill's writes
// land together or not at all. Store is an interface so the kernel and
// liquidation monitor depend on a contract, not a concrete database —
// production wiring uses gormstore (gorm.io/gorm + gorm.io/driver/sqlite,
// grounded on ChoSanghyuk-blackholedex's gorm usage in the retrieval
// pack); tests use the in-memory memstore.
package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rindex/internal/common"
)

// FillWrite bundles everything a single execute_fill touches (spec.md
// §4.5: "a single fill may touch up to five records"), so implementations
// can apply it as one transaction.
type FillWrite struct {
	Trade              common.Trade
	AggressorOrder     common.Order
	RestingOrder       common.Order
	RestingOrderFilled bool // true if the resting order is now fully filled and should be deleted
	BuyerPosition      *common.Position
	BuyerPositionFlat  bool
	SellerPosition     *common.Position
	SellerPositionFlat bool
	BuyerTrader        common.Trader
	SellerTrader       common.Trader
}

// MarketStats is the persisted snapshot backing spec.md §4.7.
type MarketStats struct {
	Instrument string
	LastPrice  decimal.Decimal
	UpdatedAt  time.Time
}

// Store is the persistence contract consumed by internal/kernel and
// internal/liquidation.
type Store interface {
	// Traders
	UpsertTrader(t common.Trader) error
	GetTrader(id uuid.UUID) (common.Trader, bool, error)
	GetTraderByUsername(username string) (common.Trader, bool, error)
	ListTraders() ([]common.Trader, error)

	// Positions
	UpsertPosition(p common.Position) error
	DeletePosition(traderID uuid.UUID, instrument string) error
	GetPosition(traderID uuid.UUID, instrument string) (common.Position, bool, error)
	ListPositionsByInstrument(instrument string) ([]common.Position, error)
	ListPositionsByTrader(traderID uuid.UUID) ([]common.Position, error)

	// Orders
	InsertOrder(o common.Order) error
	UpdateOrderFill(o common.Order) error
	DeleteOrder(id uuid.UUID) error
	ListOpenOrders(instrument string) ([]common.Order, error)

	// Trades (append-only)
	InsertTrade(t common.Trade) error
	ListRecentTrades(instrument string, limit int) ([]common.Trade, error)
	ListTraderTrades(traderID uuid.UUID, instrument string, limit int) ([]common.Trade, error)

	// Liquidations (append-only)
	InsertLiquidation(l common.Liquidation) error
	ListRecentLiquidations(instrument string, limit int) ([]common.Liquidation, error)

	// Market stats
	UpsertMarketStats(s MarketStats) error
	GetMarketStats(instrument string) (MarketStats, bool, error)

	// ApplyFill persists every record touched by one execute_fill
	// atomically (spec.md §4.5).
	ApplyFill(instrument string, fw FillWrite) error

	// ApplyLiquidation persists a forced close atomically: deletes the
	// position, credits the trader, and appends the liquidation record.
	ApplyLiquidation(instrument string, trader common.Trader, l common.Liquidation) error
}
