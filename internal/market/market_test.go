package market

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
	"rindex/internal/kernel"
	"rindex/internal/store"
)

func newTestService(t *testing.T) (*Service, *kernel.Kernel, store.Store) {
	t.Helper()
	cfg := config.Default()
	h := hub.New()
	st := store.NewMemStore()
	k := kernel.New("R.index", cfg, st, h)
	svc := New(k, st, "R.index")
	return svc, k, st
}

func trade(t *testing.T, st store.Store, price, size string, ts time.Time) {
	t.Helper()
	p, err := decimal.NewFromString(price)
	require.NoError(t, err)
	s, err := decimal.NewFromString(size)
	require.NoError(t, err)
	require.NoError(t, st.InsertTrade(common.Trade{
		ID: uuid.New(), Price: p, Size: s, Timestamp: ts,
		BuyerID: uuid.New(), SellerID: uuid.New(),
	}))
}

func TestStats_ComputesWindow(t *testing.T) {
	svc, _, st := newTestService(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	trade(t, st, "99", "1", now.Add(-30*time.Hour)) // outside the 24h window
	trade(t, st, "100", "2", now.Add(-2*time.Hour))
	trade(t, st, "105", "1", now.Add(-1*time.Hour))
	trade(t, st, "98", "3", now.Add(-30*time.Minute))

	stats, err := svc.Stats(now)
	require.NoError(t, err)

	assert.True(t, stats.High24h.Equal(decimal.NewFromInt(105)))
	assert.True(t, stats.Low24h.Equal(decimal.NewFromInt(98)))
	// volume = 100*2 + 105*1 + 98*3 = 200+105+294 = 599
	assert.True(t, stats.Volume24h.Equal(decimal.NewFromInt(599)), "got %s", stats.Volume24h)
	assert.True(t, stats.LastPrice.Equal(decimal.NewFromInt(98)), "last price should be the most recent trade")
}

func TestStats_FallsBackToMarkWhenNoTrades(t *testing.T) {
	svc, k, _ := newTestService(t)
	stats, err := svc.Stats(time.Now())
	require.NoError(t, err)
	assert.True(t, stats.LastPrice.Equal(k.GetMarkPrice()))
}

// Covers spec.md §9's open question: open must be the earliest trade in
// the bucket, not whichever trade happened to be appended/iterated first.
func TestCandles_OpenIsEarliestTradeRegardlessOfOrder(t *testing.T) {
	svc, _, st := newTestService(t)
	bucketStart := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of chronological order on purpose.
	trade(t, st, "103", "1", bucketStart.Add(45*time.Second))
	trade(t, st, "100", "1", bucketStart.Add(5*time.Second)) // earliest -> should be Open
	trade(t, st, "101", "1", bucketStart.Add(30*time.Second))

	candles, err := svc.Candles(Interval1m, 10)
	require.NoError(t, err)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.True(t, c.Open.Equal(decimal.NewFromInt(100)), "open should be the trade with the minimum timestamp")
	assert.True(t, c.Close.Equal(decimal.NewFromInt(103)), "close should be the trade with the maximum timestamp")
	assert.True(t, c.High.Equal(decimal.NewFromInt(103)))
	assert.True(t, c.Low.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 3, c.TradeCount)
	assert.True(t, c.OpenTime.Equal(bucketStart))
	assert.True(t, c.CloseTime.Equal(bucketStart.Add(time.Minute)))
}

func TestCandles_DailyAlignsToUTCMidnight(t *testing.T) {
	svc, _, st := newTestService(t)
	ts := time.Date(2026, 3, 15, 17, 30, 0, 0, time.UTC)
	trade(t, st, "100", "1", ts)

	candles, err := svc.Candles(Interval1d, 1)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.True(t, candles[0].OpenTime.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
}

func TestCandles_BucketsSeparateIntervals(t *testing.T) {
	svc, _, st := newTestService(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	trade(t, st, "100", "1", base)
	trade(t, st, "110", "1", base.Add(time.Minute))
	trade(t, st, "120", "1", base.Add(2*time.Minute))

	candles, err := svc.Candles(Interval1m, 10)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.True(t, candles[0].OpenTime.Equal(base))
	assert.True(t, candles[1].OpenTime.Equal(base.Add(time.Minute)))
	assert.True(t, candles[2].OpenTime.Equal(base.Add(2*time.Minute)))
}

func TestCandles_UnknownIntervalErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Candles(Interval("2m"), 10)
	assert.Error(t, err)
}

func TestHistoricalCandles_FiltersRange(t *testing.T) {
	svc, _, st := newTestService(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	trade(t, st, "100", "1", base)
	trade(t, st, "200", "1", base.Add(24*time.Hour))

	candles, err := svc.HistoricalCandles(Interval1d, base, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.True(t, candles[0].Open.Equal(decimal.NewFromInt(100)))
}
