package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"rindex/internal/common"
)

// gormStore is the production Store: gorm.io/gorm over sqlite, the
// db/orm pairing grounded on ChoSanghyuk-blackholedex's gorm models
// (pack) and the several gorm.io/driver/sqlite manifests in the
// retrieval pack. It exists because the kernel's durability contract
// (spec.md §4.5) requires atomic multi-row writes, which gorm's
// db.Transaction gives us directly.
type gormStore struct {
	db         *gorm.DB
	instrument string
}

// Open constructs a gormStore backed by the sqlite file at path and runs
// AutoMigrate against the six tables of spec.md §6.
func Open(path, instrument string) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: opening sqlite at %s: %w", path, err)
	}
	if err := db.AutoMigrate(
		&traderRow{}, &positionRow{}, &orderRow{}, &tradeRow{}, &liquidationRow{}, &marketStatsRow{},
	); err != nil {
		return nil, fmt.Errorf("store: migrating schema: %w", err)
	}
	return &gormStore{db: db, instrument: instrument}, nil
}

func (s *gormStore) UpsertTrader(t common.Trader) error {
	return s.db.Save(ptr(toTraderRow(t))).Error
}

func (s *gormStore) GetTrader(id uuid.UUID) (common.Trader, bool, error) {
	var row traderRow
	err := s.db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.Trader{}, false, nil
	}
	if err != nil {
		return common.Trader{}, false, err
	}
	return fromTraderRow(row), true, nil
}

func (s *gormStore) GetTraderByUsername(username string) (common.Trader, bool, error) {
	var row traderRow
	err := s.db.First(&row, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.Trader{}, false, nil
	}
	if err != nil {
		return common.Trader{}, false, err
	}
	return fromTraderRow(row), true, nil
}

func (s *gormStore) ListTraders() ([]common.Trader, error) {
	var rows []traderRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]common.Trader, len(rows))
	for i, r := range rows {
		out[i] = fromTraderRow(r)
	}
	return out, nil
}

func (s *gormStore) UpsertPosition(p common.Position) error {
	return s.db.Save(ptr(toPositionRow(p))).Error
}

func (s *gormStore) DeletePosition(traderID uuid.UUID, instrument string) error {
	return s.db.Delete(&positionRow{}, "trader_id = ? AND instrument = ?", traderID, instrument).Error
}

func (s *gormStore) GetPosition(traderID uuid.UUID, instrument string) (common.Position, bool, error) {
	var row positionRow
	err := s.db.First(&row, "trader_id = ? AND instrument = ?", traderID, instrument).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.Position{}, false, nil
	}
	if err != nil {
		return common.Position{}, false, err
	}
	return fromPositionRow(row), true, nil
}

func (s *gormStore) ListPositionsByInstrument(instrument string) ([]common.Position, error) {
	var rows []positionRow
	if err := s.db.Where("instrument = ?", instrument).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]common.Position, len(rows))
	for i, r := range rows {
		out[i] = fromPositionRow(r)
	}
	return out, nil
}

func (s *gormStore) ListPositionsByTrader(traderID uuid.UUID) ([]common.Position, error) {
	var rows []positionRow
	if err := s.db.Where("trader_id = ?", traderID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]common.Position, len(rows))
	for i, r := range rows {
		out[i] = fromPositionRow(r)
	}
	return out, nil
}

func (s *gormStore) InsertOrder(o common.Order) error {
	return s.db.Create(ptr(toOrderRow(s.instrument, o))).Error
}

func (s *gormStore) UpdateOrderFill(o common.Order) error {
	return s.db.Save(ptr(toOrderRow(s.instrument, o))).Error
}

func (s *gormStore) DeleteOrder(id uuid.UUID) error {
	return s.db.Delete(&orderRow{}, "id = ?", id).Error
}

func (s *gormStore) ListOpenOrders(instrument string) ([]common.Order, error) {
	var rows []orderRow
	err := s.db.Where("instrument = ? AND status IN ?", instrument,
		[]int{int(common.Pending), int(common.Partial)}).Order("created_at asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]common.Order, len(rows))
	for i, r := range rows {
		out[i] = fromOrderRow(r)
	}
	return out, nil
}

func (s *gormStore) InsertTrade(t common.Trade) error {
	return s.db.Create(ptr(toTradeRow(s.instrument, t))).Error
}

func (s *gormStore) ListRecentTrades(instrument string, limit int) ([]common.Trade, error) {
	var rows []tradeRow
	err := s.db.Where("instrument = ?", instrument).Order("timestamp desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]common.Trade, len(rows))
	for i, r := range rows {
		out[i] = fromTradeRow(r)
	}
	return out, nil
}

func (s *gormStore) ListTraderTrades(traderID uuid.UUID, instrument string, limit int) ([]common.Trade, error) {
	var rows []tradeRow
	err := s.db.Where("instrument = ? AND (buyer_id = ? OR seller_id = ?)", instrument, traderID, traderID).
		Order("timestamp desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]common.Trade, len(rows))
	for i, r := range rows {
		out[i] = fromTradeRow(r)
	}
	return out, nil
}

func (s *gormStore) InsertLiquidation(l common.Liquidation) error {
	return s.db.Create(ptr(toLiquidationRow(s.instrument, l))).Error
}

func (s *gormStore) ListRecentLiquidations(instrument string, limit int) ([]common.Liquidation, error) {
	var rows []liquidationRow
	err := s.db.Where("instrument = ?", instrument).Order("timestamp desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]common.Liquidation, len(rows))
	for i, r := range rows {
		out[i] = fromLiquidationRow(r)
	}
	return out, nil
}

func (s *gormStore) UpsertMarketStats(ms MarketStats) error {
	return s.db.Save(&marketStatsRow{Instrument: ms.Instrument, LastPrice: ms.LastPrice, UpdatedAt: ms.UpdatedAt}).Error
}

func (s *gormStore) GetMarketStats(instrument string) (MarketStats, bool, error) {
	var row marketStatsRow
	err := s.db.First(&row, "instrument = ?", instrument).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MarketStats{}, false, nil
	}
	if err != nil {
		return MarketStats{}, false, err
	}
	return MarketStats{Instrument: row.Instrument, LastPrice: row.LastPrice, UpdatedAt: row.UpdatedAt}, true, nil
}

// ApplyFill writes every record touched by one execute_fill inside a
// single gorm transaction, satisfying spec.md §4.5's atomicity contract.
func (s *gormStore) ApplyFill(instrument string, fw FillWrite) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ptr(toTradeRow(instrument, fw.Trade))).Error; err != nil {
			return err
		}
		if err := tx.Save(ptr(toOrderRow(instrument, fw.AggressorOrder))).Error; err != nil {
			return err
		}
		if fw.RestingOrderFilled {
			if err := tx.Delete(&orderRow{}, "id = ?", fw.RestingOrder.ID).Error; err != nil {
				return err
			}
		} else if err := tx.Save(ptr(toOrderRow(instrument, fw.RestingOrder))).Error; err != nil {
			return err
		}

		if err := upsertOrDeletePosition(tx, instrument, fw.Trade.BuyerID, fw.BuyerPosition, fw.BuyerPositionFlat); err != nil {
			return err
		}
		if err := upsertOrDeletePosition(tx, instrument, fw.Trade.SellerID, fw.SellerPosition, fw.SellerPositionFlat); err != nil {
			return err
		}

		if err := tx.Save(ptr(toTraderRow(fw.BuyerTrader))).Error; err != nil {
			return err
		}
		if err := tx.Save(ptr(toTraderRow(fw.SellerTrader))).Error; err != nil {
			return err
		}

		return tx.Save(&marketStatsRow{Instrument: instrument, LastPrice: fw.Trade.Price, UpdatedAt: fw.Trade.Timestamp}).Error
	})
}

func upsertOrDeletePosition(tx *gorm.DB, instrument string, traderID uuid.UUID, pos *common.Position, flat bool) error {
	if flat || pos == nil {
		return tx.Delete(&positionRow{}, "trader_id = ? AND instrument = ?", traderID, instrument).Error
	}
	return tx.Save(ptr(toPositionRow(*pos))).Error
}

// ApplyLiquidation persists a forced close atomically: trader credit,
// position deletion, and the liquidation record land in one transaction.
func (s *gormStore) ApplyLiquidation(instrument string, trader common.Trader, l common.Liquidation) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(ptr(toTraderRow(trader))).Error; err != nil {
			return err
		}
		if err := tx.Delete(&positionRow{}, "trader_id = ? AND instrument = ?", l.TraderID, instrument).Error; err != nil {
			return err
		}
		return tx.Create(ptr(toLiquidationRow(instrument, l))).Error
	})
}

func ptr[T any](v T) *T { return &v }
