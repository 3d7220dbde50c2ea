package checkout

import "context"

// QueryGateway is the read-only side: no mutation, no failure modes beyond
// the store being unavailable.
type QueryGateway struct {
	store Store
}

func NewQueryGateway(store Store) *QueryGateway {
	return &QueryGateway{store: store}
}

// OrdersForOwner returns only the given owner's orders, oldest first.
func (g *QueryGateway) OrdersForOwner(ctx context.Context, ownerID string) ([]Order, error) {
	return g.store.OrdersForOwner(ctx, ownerID)
}

// AllOrders returns every order; authorization is applied by the caller.
func (g *QueryGateway) AllOrders(ctx context.Context) ([]Order, error) {
	return g.store.AllOrders(ctx)
}

func (g *QueryGateway) OrderByID(ctx context.Context, orderID string) (Order, error) {
	return g.store.OrderByID(ctx, orderID)
}
