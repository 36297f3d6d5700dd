package kernel

import "errors"

// Error kinds surfaced by the kernel (spec.md §7). The outer HTTP/WS layer
// (out of scope here) maps these to transport status codes.
var (
	ErrUnknownInstrument  = errors.New("unknown instrument")
	ErrUnknownTrader      = errors.New("unknown trader")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrSelfTradeOnly      = errors.New("order only crossed the trader's own resting liquidity")
	ErrNotFound           = errors.New("order not found or not cancellable")
	ErrPersistenceFailure = errors.New("persistence failure")
)
