package checkout

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// maxAttempts caps whole-attempt retries on transient store contention.
const maxAttempts = 3

// Emitter receives the post-commit domain event. Implementations must not
// block the caller; delivery is best-effort and failures stay on their side.
type Emitter interface {
	Emit(ev Envelope)
}

// Service converts a cart into a committed order. All stock mutation goes
// through the Store's reservation; nothing here touches stock directly.
type Service struct {
	store   Store
	emitter Emitter
	name    string
}

func NewService(store Store, emitter Emitter, name string) *Service {
	return &Service{store: store, emitter: emitter, name: name}
}

// CreateOrder validates the cart, reserves every line and persists the order
// atomically. Any line failure aborts the whole attempt: no stock is
// consumed, no order row is written. The OrderCreated event goes out only
// after the transaction commits.
func (s *Service) CreateOrder(ctx context.Context, ownerID string, cart []CartLine) (*Order, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	for _, l := range cart {
		if l.Qty <= 0 {
			return nil, &LineError{ProductID: l.ProductID, Required: l.Qty, Err: ErrInvalidQuantity}
		}
	}

	ok, err := s.store.OwnerExists(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOwnerNotFound
	}

	var order *Order
	for attempt := 0; ; attempt++ {
		order, err = s.tryCheckout(ctx, ownerID, cart)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrContention) || attempt+1 >= maxAttempts {
			if errors.Is(err, ErrContention) {
				return nil, ErrContentionExceeded
			}
			return nil, err
		}
	}

	if s.emitter != nil {
		s.emitter.Emit(NewOrderCreated(order, s.name, TraceID(ctx)))
	}
	return order, nil
}

// tryCheckout runs one atomic attempt. Reservations are taken in ascending
// product-id order so concurrent checkouts acquire row locks in one global
// order; the order's items still follow the caller-supplied cart order.
func (s *Service) tryCheckout(ctx context.Context, ownerID string, cart []CartLine) (*Order, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snaps := make(map[string]Snapshot, len(cart))
	for _, l := range lockOrder(cart) {
		snap, err := tx.ReserveStock(ctx, l.ProductID, l.Qty)
		if err != nil {
			return nil, err
		}
		snaps[l.ProductID] = snap
	}

	order := &Order{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
		Items:     make([]OrderItem, 0, len(cart)),
	}
	for _, l := range cart {
		snap := snaps[l.ProductID]
		order.Items = append(order.Items, snap.Item(l.ProductID, l.Qty))
		order.TotalCents += snap.PriceCents * int64(l.Qty)
	}

	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

// lockOrder returns the cart sorted ascending by product id, with repeated
// products merged into one reservation.
func lockOrder(cart []CartLine) []CartLine {
	merged := make(map[string]int, len(cart))
	for _, l := range cart {
		merged[l.ProductID] += l.Qty
	}
	out := make([]CartLine, 0, len(merged))
	for id, qty := range merged {
		out = append(out, CartLine{ProductID: id, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
