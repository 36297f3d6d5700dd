package market

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"rindex/internal/common"
)

// Interval is a supported candle bucket width (spec.md §4.7).
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Duration returns the interval's width and whether it is recognized.
func (i Interval) Duration() (time.Duration, bool) {
	switch i {
	case Interval1m:
		return time.Minute, true
	case Interval5m:
		return 5 * time.Minute, true
	case Interval15m:
		return 15 * time.Minute, true
	case Interval1h:
		return time.Hour, true
	case Interval4h:
		return 4 * time.Hour, true
	case Interval1d:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Candle is one OHLCV bucket (spec.md §4.7).
type Candle struct {
	OpenTime   time.Time
	CloseTime  time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	TradeCount int
}

// ErrUnknownInterval is returned for an interval string outside the fixed
// set spec.md §4.7 names.
type ErrUnknownInterval struct{}

func (ErrUnknownInterval) Error() string { return "market: unknown candle interval" }

// truncate floors t to the interval boundary in UTC; daily candles align
// to 00:00 UTC, matching spec.md §4.7.
func truncate(t time.Time, width time.Duration) time.Time {
	t = t.UTC()
	if width == 24*time.Hour {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return t.Truncate(width)
}

// Candles returns up to limit candles of the given interval covering the
// most recently traded history, oldest-bucket-first.
func (s *Service) Candles(interval Interval, limit int) ([]Candle, error) {
	width, ok := interval.Duration()
	if !ok {
		return nil, ErrUnknownInterval{}
	}
	trades, err := s.store.ListRecentTrades(s.instrument, tradeHistoryLimit)
	if err != nil {
		return nil, err
	}
	return bucketTrades(trades, width, limit), nil
}

// HistoricalCandles returns up to limit candles of the given interval whose
// trades fall within [start, end), oldest-bucket-first.
func (s *Service) HistoricalCandles(interval Interval, start, end time.Time, limit int) ([]Candle, error) {
	width, ok := interval.Duration()
	if !ok {
		return nil, ErrUnknownInterval{}
	}
	all, err := s.store.ListRecentTrades(s.instrument, tradeHistoryLimit)
	if err != nil {
		return nil, err
	}
	filtered := make([]common.Trade, 0, len(all))
	for _, t := range all {
		if !t.Timestamp.Before(start) && t.Timestamp.Before(end) {
			filtered = append(filtered, t)
		}
	}
	return bucketTrades(filtered, width, limit), nil
}

// bucketTrades groups trades (in any order) into OHLCV candles of the
// given width. open is explicitly the price of the trade with the minimum
// timestamp in each bucket — resolving spec.md §9's open question about
// the original's iteration-order-dependent open price — rather than
// relying on the order trades happen to be appended in.
func bucketTrades(trades []common.Trade, width time.Duration, limit int) []Candle {
	buckets := make(map[time.Time][]common.Trade)
	for _, t := range trades {
		open := truncate(t.Timestamp, width)
		buckets[open] = append(buckets[open], t)
	}

	openTimes := make([]time.Time, 0, len(buckets))
	for ot := range buckets {
		openTimes = append(openTimes, ot)
	}
	sort.Slice(openTimes, func(i, j int) bool { return openTimes[i].Before(openTimes[j]) })

	if limit > 0 && len(openTimes) > limit {
		openTimes = openTimes[len(openTimes)-limit:]
	}

	out := make([]Candle, 0, len(openTimes))
	for _, ot := range openTimes {
		group := buckets[ot]
		sort.Slice(group, func(i, j int) bool { return group[i].Timestamp.Before(group[j].Timestamp) })

		c := Candle{
			OpenTime:   ot,
			CloseTime:  ot.Add(width),
			Open:       group[0].Price, // earliest trade by timestamp, not by append order
			Close:      group[len(group)-1].Price,
			High:       group[0].Price,
			Low:        group[0].Price,
			Volume:     decimal.Zero,
			TradeCount: len(group),
		}
		for _, t := range group {
			if t.Price.GreaterThan(c.High) {
				c.High = t.Price
			}
			if t.Price.LessThan(c.Low) {
				c.Low = t.Price
			}
			c.Volume = c.Volume.Add(t.Size)
		}
		out = append(out, c)
	}
	return out
}
