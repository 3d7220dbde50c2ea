// Package memstore is an in-memory checkout.Store used by the test suite
// and for local runs without postgres. Stock is guarded per product: a
// checkout holds the product locks from reservation until commit/rollback,
// so readers never observe a partially decremented state and checkouts on
// disjoint products never block each other.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/elishop/go-checkout/internal/checkout"
)

type product struct {
	mu sync.Mutex
	p  checkout.Product
}

type Store struct {
	mu       sync.RWMutex // guards the maps and order log, not stock
	owners   map[string]struct{}
	products map[string]*product
	orders   []checkout.Order
}

func New() *Store {
	return &Store{
		owners:   make(map[string]struct{}),
		products: make(map[string]*product),
	}
}

func (s *Store) AddOwner(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[id] = struct{}{}
}

func (s *Store) AddProduct(p checkout.Product) {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &product{p: p}
}

func (s *Store) lookup(id string) (*product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pr, ok := s.products[id]
	return pr, ok
}

// Product returns the committed state of one product.
func (s *Store) Product(id string) (checkout.Product, bool) {
	pr, ok := s.lookup(id)
	if !ok {
		return checkout.Product{}, false
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.p, true
}

func (s *Store) OwnerExists(_ context.Context, ownerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.owners[ownerID]
	return ok, nil
}

func (s *Store) OrdersForOwner(_ context.Context, ownerID string) ([]checkout.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []checkout.Order
	for _, o := range s.orders {
		if o.OwnerID == ownerID {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (s *Store) AllOrders(_ context.Context) ([]checkout.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]checkout.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (s *Store) OrderByID(_ context.Context, orderID string) (checkout.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ID == orderID {
			return cloneOrder(o), nil
		}
	}
	return checkout.Order{}, checkout.ErrOrderNotFound
}

func (s *Store) Begin(_ context.Context) (checkout.Tx, error) {
	return &tx{
		s:       s,
		held:    make(map[string]*product),
		pending: make(map[string]int),
	}, nil
}

// tx accumulates decrements and applies them only on Commit, while the
// per-product locks taken at reservation time keep concurrent reservations
// of the same product serialized.
type tx struct {
	s       *Store
	held    map[string]*product
	pending map[string]int
	order   *checkout.Order
	done    bool
}

func (t *tx) ReserveStock(_ context.Context, productID string, qty int) (checkout.Snapshot, error) {
	pr, ok := t.s.lookup(productID)
	if !ok {
		return checkout.Snapshot{}, &checkout.LineError{
			ProductID: productID, Required: qty, Err: checkout.ErrProductNotFound,
		}
	}
	if _, locked := t.held[productID]; !locked {
		pr.mu.Lock()
		t.held[productID] = pr
	}
	available := pr.p.Stock - t.pending[productID]
	if available < qty {
		return checkout.Snapshot{}, &checkout.LineError{
			ProductID: productID, Required: qty, Available: available,
			Err: checkout.ErrInsufficientStock,
		}
	}
	t.pending[productID] += qty
	return checkout.Snapshot{Name: pr.p.Name, PriceCents: pr.p.PriceCents}, nil
}

func (t *tx) InsertOrder(_ context.Context, o *checkout.Order) error {
	c := cloneOrder(*o)
	t.order = &c
	return nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return nil
	}
	now := time.Now().UTC()
	for id, qty := range t.pending {
		pr := t.held[id]
		pr.p.Stock -= qty
		pr.p.UpdatedAt = now
	}
	if t.order != nil {
		t.s.mu.Lock()
		t.s.orders = append(t.s.orders, *t.order)
		sort.SliceStable(t.s.orders, func(i, j int) bool {
			return t.s.orders[i].CreatedAt.Before(t.s.orders[j].CreatedAt)
		})
		t.s.mu.Unlock()
	}
	t.release()
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *tx) release() {
	for _, pr := range t.held {
		pr.mu.Unlock()
	}
	t.held = nil
	t.pending = nil
	t.done = true
}

func cloneOrder(o checkout.Order) checkout.Order {
	items := make([]checkout.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}
