package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rindex/internal/common"
)

// The gorm models below implement the "Persisted state layout" column and
// index semantics of spec.md §6 exactly. Monetary/quantity fields are
// stored as TEXT (decimal.Decimal round-trips through its Scan/Value
// methods as a canonical string) rather than floating point, per
// spec.md §9.

type traderRow struct {
	ID              uuid.UUID `gorm:"type:text;primaryKey"`
	Username        string    `gorm:"uniqueIndex;not null"`
	Type            int
	Balance         decimal.Decimal `gorm:"type:text"`
	TotalPnL        decimal.Decimal `gorm:"type:text"`
	TradeCount      int64
	MaxLeverageUsed int
	CreatedAt       time.Time
}

func (traderRow) TableName() string { return "traders" }

type positionRow struct {
	TraderID         uuid.UUID `gorm:"type:text;primaryKey;index:idx_positions_instrument_trader,priority:2"`
	Instrument       string    `gorm:"primaryKey;index:idx_positions_instrument_trader,priority:1"`
	Size             decimal.Decimal `gorm:"type:text"`
	EntryPrice       decimal.Decimal `gorm:"type:text"`
	Leverage         int
	Margin           decimal.Decimal `gorm:"type:text"`
	RealizedPnL      decimal.Decimal `gorm:"type:text"`
	LiquidationPrice decimal.Decimal `gorm:"type:text"`
	UpdatedAt        time.Time
}

func (positionRow) TableName() string { return "positions" }

type orderRow struct {
	ID         uuid.UUID `gorm:"type:text;primaryKey"`
	Instrument string    `gorm:"index:idx_orders_instrument_status,priority:1"`
	TraderID   uuid.UUID `gorm:"type:text;index"`
	Side       int
	Type       int
	Price      decimal.Decimal `gorm:"type:text"`
	Size       decimal.Decimal `gorm:"type:text"`
	FilledSize decimal.Decimal `gorm:"type:text"`
	Leverage   int
	Status     int `gorm:"index:idx_orders_instrument_status,priority:2"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (orderRow) TableName() string { return "orders" }

type tradeRow struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	UUID              uuid.UUID `gorm:"type:text;uniqueIndex"`
	Instrument        string    `gorm:"index:idx_trades_instrument_ts,priority:1"`
	Price             decimal.Decimal `gorm:"type:text"`
	Size              decimal.Decimal `gorm:"type:text"`
	Timestamp         time.Time       `gorm:"index:idx_trades_instrument_ts,priority:2"`
	BuyerID           uuid.UUID       `gorm:"type:text;index"`
	SellerID          uuid.UUID       `gorm:"type:text;index"`
	BuyerOrderID      uuid.UUID       `gorm:"type:text"`
	SellerOrderID     uuid.UUID       `gorm:"type:text"`
	BuyerLeverage     int
	SellerLeverage    int
	BuyerEffect       int
	SellerEffect      int
	BuyerNewPosition  decimal.Decimal `gorm:"type:text"`
	SellerNewPosition decimal.Decimal `gorm:"type:text"`
	AggressorSide     int
}

func (tradeRow) TableName() string { return "trades" }

type liquidationRow struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	UUID             uuid.UUID `gorm:"type:text;uniqueIndex"`
	Instrument       string    `gorm:"index:idx_liq_instrument_ts,priority:1"`
	TraderID         uuid.UUID `gorm:"type:text;index"`
	Side             int
	Size             decimal.Decimal `gorm:"type:text"`
	EntryPrice       decimal.Decimal `gorm:"type:text"`
	LiquidationPrice decimal.Decimal `gorm:"type:text"`
	MarkPrice        decimal.Decimal `gorm:"type:text"`
	Leverage         int
	Loss             decimal.Decimal `gorm:"type:text"`
	InsuranceFundHit bool
	Timestamp        time.Time `gorm:"index:idx_liq_instrument_ts,priority:2"`
}

func (liquidationRow) TableName() string { return "liquidations" }

type marketStatsRow struct {
	Instrument string `gorm:"primaryKey"`
	LastPrice  decimal.Decimal `gorm:"type:text"`
	UpdatedAt  time.Time
}

func (marketStatsRow) TableName() string { return "market_stats" }

func toTraderRow(t common.Trader) traderRow {
	return traderRow{
		ID: t.ID, Username: t.Username, Type: int(t.Type), Balance: t.Balance,
		TotalPnL: t.TotalPnL, TradeCount: t.TradeCount, MaxLeverageUsed: t.MaxLeverageUsed,
		CreatedAt: t.CreatedAt,
	}
}

func fromTraderRow(r traderRow) common.Trader {
	return common.Trader{
		ID: r.ID, Username: r.Username, Type: common.TraderType(r.Type), Balance: r.Balance,
		TotalPnL: r.TotalPnL, TradeCount: r.TradeCount, MaxLeverageUsed: r.MaxLeverageUsed,
		CreatedAt: r.CreatedAt,
	}
}

func toPositionRow(p common.Position) positionRow {
	return positionRow{
		TraderID: p.TraderID, Instrument: p.Instrument, Size: p.Size, EntryPrice: p.EntryPrice,
		Leverage: p.Leverage, Margin: p.Margin, RealizedPnL: p.RealizedPnL,
		LiquidationPrice: p.LiquidationPrice, UpdatedAt: p.UpdatedAt,
	}
}

func fromPositionRow(r positionRow) common.Position {
	return common.Position{
		TraderID: r.TraderID, Instrument: r.Instrument, Size: r.Size, EntryPrice: r.EntryPrice,
		Leverage: r.Leverage, Margin: r.Margin, RealizedPnL: r.RealizedPnL,
		LiquidationPrice: r.LiquidationPrice, UpdatedAt: r.UpdatedAt,
	}
}

func toOrderRow(instrument string, o common.Order) orderRow {
	return orderRow{
		ID: o.ID, Instrument: instrument, TraderID: o.TraderID, Side: int(o.Side),
		Type: int(o.Type), Price: o.Price, Size: o.Size, FilledSize: o.FilledSize,
		Leverage: o.Leverage, Status: int(o.Status), CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}
}

func fromOrderRow(r orderRow) common.Order {
	return common.Order{
		ID: r.ID, TraderID: r.TraderID, Side: common.Side(r.Side), Type: common.OrderType(r.Type),
		Price: r.Price, Size: r.Size, FilledSize: r.FilledSize, Leverage: r.Leverage,
		Status: common.OrderStatus(r.Status), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func toTradeRow(instrument string, t common.Trade) tradeRow {
	return tradeRow{
		UUID: t.ID, Instrument: instrument, Price: t.Price, Size: t.Size, Timestamp: t.Timestamp,
		BuyerID: t.BuyerID, SellerID: t.SellerID, BuyerOrderID: t.BuyerOrderID, SellerOrderID: t.SellerOrderID,
		BuyerLeverage: t.BuyerLeverage, SellerLeverage: t.SellerLeverage,
		BuyerEffect: int(t.BuyerEffect), SellerEffect: int(t.SellerEffect),
		BuyerNewPosition: t.BuyerNewPosition, SellerNewPosition: t.SellerNewPosition,
		AggressorSide: int(t.AggressorSide),
	}
}

func fromTradeRow(r tradeRow) common.Trade {
	return common.Trade{
		ID: r.UUID, Price: r.Price, Size: r.Size, Timestamp: r.Timestamp,
		BuyerID: r.BuyerID, SellerID: r.SellerID, BuyerOrderID: r.BuyerOrderID, SellerOrderID: r.SellerOrderID,
		BuyerLeverage: r.BuyerLeverage, SellerLeverage: r.SellerLeverage,
		BuyerEffect: common.PositionEffect(r.BuyerEffect), SellerEffect: common.PositionEffect(r.SellerEffect),
		BuyerNewPosition: r.BuyerNewPosition, SellerNewPosition: r.SellerNewPosition,
		AggressorSide: common.Side(r.AggressorSide),
	}
}

func toLiquidationRow(instrument string, l common.Liquidation) liquidationRow {
	return liquidationRow{
		UUID: l.ID, Instrument: instrument, TraderID: l.TraderID, Side: int(l.Side), Size: l.Size,
		EntryPrice: l.EntryPrice, LiquidationPrice: l.LiquidationPrice, MarkPrice: l.MarkPrice,
		Leverage: l.Leverage, Loss: l.Loss, InsuranceFundHit: l.InsuranceFundHit, Timestamp: l.Timestamp,
	}
}

func fromLiquidationRow(r liquidationRow) common.Liquidation {
	return common.Liquidation{
		ID: r.UUID, TraderID: r.TraderID, Side: common.Side(r.Side), Size: r.Size,
		EntryPrice: r.EntryPrice, LiquidationPrice: r.LiquidationPrice, MarkPrice: r.MarkPrice,
		Leverage: r.Leverage, Loss: r.Loss, InsuranceFundHit: r.InsuranceFundHit, Timestamp: r.Timestamp,
	}
}
