package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrOwnerNotFound     = errors.New("owner not found")
	ErrEmptyCart         = errors.New("empty cart")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrContention marks a transient store conflict (lock wait, deadlock,
	// serialization failure). The assembler retries the whole attempt on it.
	ErrContention = errors.New("reservation contention")

	// ErrContentionExceeded is surfaced once the retry cap is hit.
	ErrContentionExceeded = errors.New("reservation contention retries exhausted")

	ErrStoreUnavailable = errors.New("store unavailable")

	ErrOrderNotFound = errors.New("order not found")
)

// LineError ties a checkout failure to the cart line that caused it.
// It unwraps to one of the sentinels above, so callers can use errors.Is.
type LineError struct {
	ProductID string
	Required  int
	Available int
	Err       error
}

func (e *LineError) Error() string {
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("%v: product %s: required %d, available %d",
			e.Err, e.ProductID, e.Required, e.Available)
	}
	return fmt.Sprintf("%v: product %s", e.Err, e.ProductID)
}

func (e *LineError) Unwrap() error { return e.Err }
