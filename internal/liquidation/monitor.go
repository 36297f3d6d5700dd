// Package liquidation implements the periodic forced-close scanner of
// spec.md §4.4: a tomb.v2-supervised ticker that snapshots every non-flat
// position, checks it against the trigger rule in internal/position, and
// forces a close funded first by the position's own margin and, on
// shortfall, by the insurance fund. It is grounded on the teacher's
// internal/worker.go WorkerPool, the only place in the teacher repo that
// runs a supervised background loop.
package liquidation

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"rindex/internal/common"
	"rindex/internal/position"
)

// Kernel is the subset of internal/kernel.Kernel the monitor depends on.
// Declaring it here (rather than importing the kernel package directly)
// keeps the dependency direction pointing from kernel -> liquidation only
// where wiring happens (cmd/kerneld), not the reverse.
type Kernel interface {
	Instrument() string
	GetAllPositions() []common.Position
	GetMarkPrice() decimal.Decimal
	ForceClose(pos common.Position, mark decimal.Decimal) (common.Liquidation, error)
}

// Monitor runs the liquidation scan loop. All persistence and event
// emission for a forced close happens inside Kernel.ForceClose, under the
// kernel's own exclusive lock, so the monitor itself holds no state.
type Monitor struct {
	kernel        Kernel
	checkInterval time.Duration
}

// New constructs a Monitor that scans every checkInterval.
func New(k Kernel, checkInterval time.Duration) *Monitor {
	return &Monitor{kernel: k, checkInterval: checkInterval}
}

// Run executes the scan loop until t dies, matching the teacher's
// tomb-supervised worker shape.
func (m *Monitor) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			m.scan()
		}
	}
}

// scan implements spec.md §4.4's scan step: snapshot non-flat positions in
// a deterministic order, then evaluate and force-close any that have
// crossed their liquidation price against the current mark.
func (m *Monitor) scan() {
	mark := m.kernel.GetMarkPrice()
	positions := m.kernel.GetAllPositions()
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].TraderID.String() < positions[j].TraderID.String()
	})

	for _, pos := range positions {
		if !position.Triggered(&pos, mark) {
			continue
		}
		liq, err := m.kernel.ForceClose(pos, mark)
		if err != nil {
			log.Error().Err(err).Str("traderID", pos.TraderID.String()).Msg("liquidation: force-close failed")
			continue
		}
		log.Warn().
			Str("traderID", liq.TraderID.String()).
			Str("loss", liq.Loss.String()).
			Bool("insuranceFundHit", liq.InsuranceFundHit).
			Msg("liquidation: position force-closed")
	}
}
