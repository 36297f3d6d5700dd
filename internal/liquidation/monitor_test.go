package liquidation

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

func setup(t *testing.T) (*kernel.Kernel, common.Trader) {
	t.Helper()
	cfg := config.Default()
	h := hub.New()
	k := kernel.New("R.index", cfg, store.NewMemStore(), h)

	a := common.Trader{ID: uuid.New(), Username: "alice", Balance: decimal.NewFromInt(10000), CreatedAt: time.Now().UTC()}
	b := common.Trader{ID: uuid.New(), Username: "bob", Balance: decimal.NewFromInt(10000), CreatedAt: time.Now().UTC()}
	require.NoError(t, k.RegisterTrader(a))
	require.NoError(t, k.RegisterTrader(b))

	// Build A's +1 @ 100 leverage 100 (aggressive tier, maintMargin=0.02).
	_, _, err := k.Submit(common.Order{TraderID: b.ID, Side: common.Sell, Type: common.Limit,
		Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1), Leverage: 100})
	require.NoError(t, err)
	_, trades, err := k.Submit(common.Order{TraderID: a.ID, Side: common.Buy, Type: common.Market,
		Size: decimal.NewFromInt(1), Leverage: 100})
	require.NoError(t, err)
	require.Len(t, trades, 1)

	return k, a
}

// Scenario 5: loss exactly equals margin, insurance fund unaffected.
func TestScan_LiquidationExactMarginCoverage(t *testing.T) {
	k, a := setup(t)
	pos, ok := k.GetPosition(a.ID)
	require.True(t, ok)
	require.True(t, pos.LiquidationPrice.Equal(decimal.NewFromFloat(99.02)), "expected liq price 99.02, got %s", pos.LiquidationPrice)

	before := k.Fund().Balance()

	liq, err := k.ForceClose(pos, decimal.NewFromFloat(99.00))
	require.NoError(t, err)
	assert.True(t, liq.Loss.Equal(decimal.NewFromInt(1)))
	assert.False(t, liq.InsuranceFundHit)
	assert.Equal(t, common.Buy, liq.Side)

	after := k.Fund().Balance()
	assert.True(t, before.Equal(after), "surplus was zero, fund balance should be unchanged")

	_, ok = k.GetPosition(a.ID)
	assert.False(t, ok, "position must be deleted after forced close")
}

// Scenario 6: loss exceeds margin, insurance fund absorbs the shortfall.
func TestScan_LiquidationInsuranceFundHit(t *testing.T) {
	k, a := setup(t)
	pos, ok := k.GetPosition(a.ID)
	require.True(t, ok)

	before := k.Fund().Balance()

	liq, err := k.ForceClose(pos, decimal.NewFromFloat(98.50))
	require.NoError(t, err)
	assert.True(t, liq.Loss.Equal(decimal.NewFromFloat(1.5)))
	assert.True(t, liq.InsuranceFundHit)

	after := k.Fund().Balance()
	assert.True(t, before.Sub(after).Equal(decimal.NewFromFloat(0.5)), "fund should be decremented by the 0.5 shortfall")
}

func TestScan_RunsViaMonitor(t *testing.T) {
	k, a := setup(t)
	m := New(k, 10*time.Millisecond)

	// Two unrelated traders push the mark below A's liquidation price
	// without touching A's own position, mirroring how mark price moves
	// independently of any one trader's fills.
	carol := common.Trader{ID: uuid.New(), Username: "carol", Balance: decimal.NewFromInt(10000), CreatedAt: time.Now().UTC()}
	dave := common.Trader{ID: uuid.New(), Username: "dave", Balance: decimal.NewFromInt(10000), CreatedAt: time.Now().UTC()}
	require.NoError(t, k.RegisterTrader(carol))
	require.NoError(t, k.RegisterTrader(dave))

	_, _, err := k.Submit(common.Order{TraderID: carol.ID, Side: common.Sell, Type: common.Limit,
		Price: decimal.NewFromFloat(98.50), Size: decimal.NewFromInt(1), Leverage: 1})
	require.NoError(t, err)
	_, trades, err := k.Submit(common.Order{TraderID: dave.ID, Side: common.Buy, Type: common.Market,
		Size: decimal.NewFromInt(1), Leverage: 1})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.True(t, k.GetMarkPrice().Equal(decimal.NewFromFloat(98.50)))

	m.scan()

	_, ok := k.GetPosition(a.ID)
	assert.False(t, ok, "scan should have force-closed A's triggered position")
}
