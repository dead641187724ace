package portfolio

import "errors"

// Error taxonomy for the accounting engine. Callers distinguish these with
// errors.Is so that "no data" never masquerades as "fetch failed" or
// "invariant violated".
var (
	// ErrValidation rejects malformed input (quantity, price, symbol)
	// before any state change.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientShares rejects a SELL exceeding net holdings. The
	// check runs strictly before FIFO matching and leaves no trace.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrDataIntegrity signals an invariant violation in the trade log,
	// such as a negative computed quantity. It must be surfaced, never
	// clamped away.
	ErrDataIntegrity = errors.New("trade history integrity violation")

	// ErrNotFound signals a missing trade or other record.
	ErrNotFound = errors.New("not found")
)
