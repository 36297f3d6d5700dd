// Package market implements the read-only stats and candle aggregation of
// spec.md §4.7, layered on top of the kernel's live state (mark price,
// open interest, insurance fund) and the store's trade history. It holds
// no state of its own.
package market

import (
	"time"

	"github.com/shopspring/decimal"

	"rindex/internal/common"
	"rindex/internal/kernel"
	"rindex/internal/store"
)

// tradeHistoryLimit bounds how many recent trades Stats/Candles draw from
// the store when computing 24h windows or candle buckets. A simulated
// single-instrument kernel does not need unbounded history scans.
const tradeHistoryLimit = 50000

// Kernel is the subset of internal/kernel.Kernel that market stats need.
type Kernel interface {
	GetMarkPrice() decimal.Decimal
	GetOpenInterest() kernel.OpenInterest
	Fund() *common.InsuranceFund
}

// Service computes market stats and candles for one instrument.
type Service struct {
	kernel     Kernel
	store      store.Store
	instrument string
}

// New constructs a Service.
func New(k Kernel, st store.Store, instrument string) *Service {
	return &Service{kernel: k, store: st, instrument: instrument}
}

// Stats is the shape returned by get_market_stats (spec.md §4.7).
type Stats struct {
	Instrument    string
	LastPrice     decimal.Decimal
	MarkPrice     decimal.Decimal
	High24h       decimal.Decimal
	Low24h        decimal.Decimal
	Volume24h     decimal.Decimal
	OpenInterest  decimal.Decimal
	InsuranceFund decimal.Decimal
}

// Stats computes the current market snapshot as of now.
func (s *Service) Stats(now time.Time) (Stats, error) {
	mark := s.kernel.GetMarkPrice()
	oi := s.kernel.GetOpenInterest()

	trades, err := s.store.ListRecentTrades(s.instrument, tradeHistoryLimit)
	if err != nil {
		return Stats{}, err
	}

	cutoff := now.Add(-24 * time.Hour)
	high, low, volume := decimal.Zero, decimal.Zero, decimal.Zero
	lastPrice := mark
	haveWindow := false

	for i, t := range trades {
		if i == 0 {
			lastPrice = t.Price
		}
		if t.Timestamp.Before(cutoff) {
			continue
		}
		volume = volume.Add(t.Size.Mul(t.Price))
		if !haveWindow {
			high, low = t.Price, t.Price
			haveWindow = true
			continue
		}
		if t.Price.GreaterThan(high) {
			high = t.Price
		}
		if t.Price.LessThan(low) {
			low = t.Price
		}
	}

	return Stats{
		Instrument:    s.instrument,
		LastPrice:     lastPrice,
		MarkPrice:     mark,
		High24h:       high,
		Low24h:        low,
		Volume24h:     volume,
		OpenInterest:  oi.TotalOI,
		InsuranceFund: s.kernel.Fund().Balance(),
	}, nil
}
