package checkout

import "context"

// Store is the authoritative record of owners, stock and orders.
// Implementations: postgres (production) and memstore (tests, local runs).
type Store interface {
	// Begin opens the unit of work covering one checkout attempt: every
	// reservation and the order write commit or roll back together.
	Begin(ctx context.Context) (Tx, error)

	OwnerExists(ctx context.Context, ownerID string) (bool, error)

	// OrdersForOwner returns the owner's orders ordered by creation time.
	OrdersForOwner(ctx context.Context, ownerID string) ([]Order, error)

	// AllOrders is administrative; access control is the caller's problem.
	AllOrders(ctx context.Context) ([]Order, error)

	OrderByID(ctx context.Context, orderID string) (Order, error)
}

// Tx is one atomic checkout attempt.
type Tx interface {
	// ReserveStock atomically checks and decrements stock for one product,
	// returning the price/name read under the same lock. Concurrent
	// reservations of the same product serialize; the decrement becomes
	// visible only on Commit.
	ReserveStock(ctx context.Context, productID string, qty int) (Snapshot, error)

	InsertOrder(ctx context.Context, o *Order) error

	Commit(ctx context.Context) error

	// Rollback releases everything reserved in this attempt. Calling it
	// after Commit is a no-op.
	Rollback(ctx context.Context) error
}
