package common

import (
	"sync"

	"github.com/shopspring/decimal"
)

// InsuranceFund is the singleton fund backing under-margined liquidations
// (spec.md §3). It carries its own lock, independent of the kernel lock,
// because the liquidation monitor reads/writes it without needing the full
// kernel critical section (spec.md §5).
type InsuranceFund struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	totalIn  decimal.Decimal
	totalOut decimal.Decimal
}

// NewInsuranceFund creates a fund with the given starting balance.
func NewInsuranceFund(initial decimal.Decimal) *InsuranceFund {
	return &InsuranceFund{balance: initial}
}

// Balance returns the current balance.
func (f *InsuranceFund) Balance() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance
}

// Snapshot returns balance, total-in, and total-out together, atomically.
func (f *InsuranceFund) Snapshot() (balance, totalIn, totalOut decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.totalIn, f.totalOut
}

// Credit adds a surplus to the fund (e.g. margin exceeding a liquidation
// loss). Increments TotalIn, preserving P9's monotonicity invariant.
func (f *InsuranceFund) Credit(amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = f.balance.Add(amount)
	f.totalIn = f.totalIn.Add(amount)
}

// Debit pays out up to amount from the fund, returning the amount actually
// paid (less than amount if the fund is exhausted). Increments TotalOut by
// the amount paid, never letting balance go negative (spec.md §4.4).
func (f *InsuranceFund) Debit(amount decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 {
		return decimal.Zero
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	paid := amount
	if f.balance.Cmp(paid) < 0 {
		paid = f.balance
	}
	f.balance = f.balance.Sub(paid)
	f.totalOut = f.totalOut.Add(paid)
	return paid
}
