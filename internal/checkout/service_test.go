package checkout_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/elishop/go-checkout/internal/checkout"
	"github.com/elishop/go-checkout/internal/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []checkout.Envelope
}

func (c *captureEmitter) Emit(ev checkout.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureEmitter) all() []checkout.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]checkout.Envelope(nil), c.events...)
}

func newFixture(t *testing.T) (*memstore.Store, *checkout.Service, *captureEmitter) {
	t.Helper()
	ms := memstore.New()
	ms.AddOwner("alice")
	ms.AddOwner("bob")
	ms.AddProduct(checkout.Product{ID: "p1", Name: "Keyboard", PriceCents: 1000, Stock: 5})
	ms.AddProduct(checkout.Product{ID: "p2", Name: "Monitor", PriceCents: 24900, Stock: 2})
	em := &captureEmitter{}
	return ms, checkout.NewService(ms, em, "test-api"), em
}

func stock(t *testing.T, ms *memstore.Store, id string) int {
	t.Helper()
	p, ok := ms.Product(id)
	require.True(t, ok, "product %s", id)
	return p.Stock
}

func TestCheckoutTotalAndStock(t *testing.T) {
	ms, svc, _ := newFixture(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, "alice", []checkout.CartLine{{ProductID: "p1", Qty: 3}})
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, int64(3000), order.TotalCents)
	assert.Equal(t, "alice", order.OwnerID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Keyboard", order.Items[0].Name)
	assert.Equal(t, int64(1000), order.Items[0].PriceCents)
	assert.Equal(t, 3, order.Items[0].Qty)
	assert.Equal(t, 2, stock(t, ms, "p1"))

	// same cart again: only 2 left
	_, err = svc.CreateOrder(ctx, "alice", []checkout.CartLine{{ProductID: "p1", Qty: 3}})
	require.ErrorIs(t, err, checkout.ErrInsufficientStock)
	assert.Equal(t, 2, stock(t, ms, "p1"))
}

func TestTotalMatchesItems(t *testing.T) {
	_, svc, _ := newFixture(t)

	order, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
		{ProductID: "p2", Qty: 1},
		{ProductID: "p1", Qty: 4},
	})
	require.NoError(t, err)

	var sum int64
	for _, it := range order.Items {
		sum += it.PriceCents * int64(it.Qty)
	}
	assert.Equal(t, sum, order.TotalCents)
}

func TestItemsFollowCartOrder(t *testing.T) {
	_, svc, _ := newFixture(t)

	// p2 before p1: lock order is sorted, item order is the caller's
	order, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
		{ProductID: "p2", Qty: 1},
		{ProductID: "p1", Qty: 1},
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "p2", order.Items[0].ProductID)
	assert.Equal(t, "p1", order.Items[1].ProductID)
}

func TestDuplicateLines(t *testing.T) {
	ms, svc, _ := newFixture(t)

	order, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p1", Qty: 1},
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(3000), order.TotalCents)
	assert.Equal(t, 2, stock(t, ms, "p1"))

	// duplicate lines exceeding stock together must fail as a whole
	_, err = svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
		{ProductID: "p1", Qty: 1},
		{ProductID: "p1", Qty: 2},
	})
	require.ErrorIs(t, err, checkout.ErrInsufficientStock)
	assert.Equal(t, 2, stock(t, ms, "p1"))
}

func TestEmptyCart(t *testing.T) {
	ms, svc, em := newFixture(t)

	_, err := svc.CreateOrder(context.Background(), "alice", nil)
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
	assert.Equal(t, 5, stock(t, ms, "p1"))
	assert.Empty(t, em.all())
}

func TestInvalidQuantity(t *testing.T) {
	ms, svc, _ := newFixture(t)

	for _, qty := range []int{0, -1} {
		_, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
			{ProductID: "p1", Qty: qty},
		})
		require.ErrorIs(t, err, checkout.ErrInvalidQuantity)

		var le *checkout.LineError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "p1", le.ProductID)
	}
	assert.Equal(t, 5, stock(t, ms, "p1"))
}

func TestOwnerNotFound(t *testing.T) {
	ms, svc, _ := newFixture(t)

	_, err := svc.CreateOrder(context.Background(), "nobody", []checkout.CartLine{
		{ProductID: "p1", Qty: 1},
	})
	require.ErrorIs(t, err, checkout.ErrOwnerNotFound)
	assert.Equal(t, 5, stock(t, ms, "p1"))
}

func TestUnknownProductAbortsWholeCart(t *testing.T) {
	ms, svc, em := newFixture(t)

	_, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
		{ProductID: "p1", Qty: 2},
		{ProductID: "zz-missing", Qty: 1},
	})
	require.ErrorIs(t, err, checkout.ErrProductNotFound)

	var le *checkout.LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "zz-missing", le.ProductID)

	// nothing consumed, no order, no event
	assert.Equal(t, 5, stock(t, ms, "p1"))
	all, qerr := ms.AllOrders(context.Background())
	require.NoError(t, qerr)
	assert.Empty(t, all)
	assert.Empty(t, em.all())
}

func TestShortLineAbortsWholeCart(t *testing.T) {
	ms, svc, _ := newFixture(t)

	_, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p2", Qty: 3}, // only 2 available
	})
	require.ErrorIs(t, err, checkout.ErrInsufficientStock)

	var le *checkout.LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "p2", le.ProductID)
	assert.Equal(t, 3, le.Required)
	assert.Equal(t, 2, le.Available)

	assert.Equal(t, 5, stock(t, ms, "p1"))
	assert.Equal(t, 2, stock(t, ms, "p2"))
}

func TestConcurrentLastUnit(t *testing.T) {
	ms := memstore.New()
	ms.AddOwner("alice")
	ms.AddProduct(checkout.Product{ID: "last", Name: "Last One", PriceCents: 500, Stock: 1})
	svc := checkout.NewService(ms, nil, "test-api")

	results := make([]error, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
				{ProductID: "last", Qty: 1},
			})
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var won, lost int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		default:
			require.ErrorIs(t, err, checkout.ErrInsufficientStock)
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 0, stock(t, ms, "last"))
}

func TestConcurrentConservation(t *testing.T) {
	const initial = 10
	const buyers = 25

	ms := memstore.New()
	ms.AddOwner("alice")
	ms.AddProduct(checkout.Product{ID: "hot", Name: "Hot Item", PriceCents: 100, Stock: initial})
	svc := checkout.NewService(ms, nil, "test-api")

	errs := make([]error, buyers)
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
				{ProductID: "hot", Qty: 1},
			})
			errs[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var committed int
	for _, err := range errs {
		if err == nil {
			committed++
		} else {
			require.ErrorIs(t, err, checkout.ErrInsufficientStock)
		}
	}
	final := stock(t, ms, "hot")
	assert.GreaterOrEqual(t, final, 0)
	assert.Equal(t, initial, committed+final)
	assert.Equal(t, initial, committed) // demand exceeded supply, so all units sold

	// double-entry check against the persisted orders
	all, err := ms.AllOrders(context.Background())
	require.NoError(t, err)
	var sold int
	for _, o := range all {
		for _, it := range o.Items {
			sold += it.Qty
		}
	}
	assert.Equal(t, committed, sold)
}

func TestDisjointProductsBothSucceed(t *testing.T) {
	ms, svc, _ := newFixture(t)

	var g errgroup.Group
	g.Go(func() error {
		_, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{{ProductID: "p1", Qty: 1}})
		return err
	})
	g.Go(func() error {
		_, err := svc.CreateOrder(context.Background(), "bob", []checkout.CartLine{{ProductID: "p2", Qty: 1}})
		return err
	})
	require.NoError(t, g.Wait())
	assert.Equal(t, 4, stock(t, ms, "p1"))
	assert.Equal(t, 1, stock(t, ms, "p2"))
}

func TestOwnerScoping(t *testing.T) {
	ms, svc, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, "alice", []checkout.CartLine{{ProductID: "p1", Qty: 1}})
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, "bob", []checkout.CartLine{{ProductID: "p1", Qty: 2}})
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, "alice", []checkout.CartLine{{ProductID: "p2", Qty: 1}})
	require.NoError(t, err)

	gw := checkout.NewQueryGateway(ms)

	mine, err := gw.OrdersForOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, o := range mine {
		assert.Equal(t, "alice", o.OwnerID)
	}
	// oldest first
	assert.False(t, mine[1].CreatedAt.Before(mine[0].CreatedAt))

	all, err := gw.AllOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := gw.OrdersForOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOrderByID(t *testing.T) {
	ms, svc, _ := newFixture(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, "alice", []checkout.CartLine{{ProductID: "p1", Qty: 1}})
	require.NoError(t, err)

	gw := checkout.NewQueryGateway(ms)
	got, err := gw.OrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, order.TotalCents, got.TotalCents)

	_, err = gw.OrderByID(ctx, "missing")
	require.ErrorIs(t, err, checkout.ErrOrderNotFound)
}

func TestEventEmittedAfterCommit(t *testing.T) {
	_, svc, em := newFixture(t)

	order, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
		{ProductID: "p1", Qty: 2},
	})
	require.NoError(t, err)

	events := em.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, checkout.EventOrderCreated, ev.EventType)
	assert.Equal(t, 1, ev.EventVersion)
	assert.Equal(t, "test-api", ev.Producer)
	assert.Equal(t, order.ID, ev.CorrelationID)
	assert.NotEmpty(t, ev.EventID)

	p, err := unwrap[checkout.OrderCreatedPayload](ev)
	require.NoError(t, err)
	assert.Equal(t, order.ID, p.OrderID)
	assert.Equal(t, "alice", p.OwnerID)
	assert.Equal(t, int64(2000), p.TotalCents)
}

func TestNoEventOnFailure(t *testing.T) {
	_, svc, em := newFixture(t)

	_, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
		{ProductID: "p1", Qty: 100},
	})
	require.Error(t, err)
	assert.Empty(t, em.all())
}

// contentionStore fails the first n checkout attempts with ErrContention.
type contentionStore struct {
	checkout.Store
	mu       sync.Mutex
	failures int
}

func (c *contentionStore) Begin(ctx context.Context) (checkout.Tx, error) {
	c.mu.Lock()
	fail := c.failures > 0
	if fail {
		c.failures--
	}
	c.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("%w: simulated", checkout.ErrContention)
	}
	return c.Store.Begin(ctx)
}

func TestContentionRetried(t *testing.T) {
	ms, _, _ := newFixture(t)
	cs := &contentionStore{Store: ms, failures: 2}
	svc := checkout.NewService(cs, nil, "test-api")

	order, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
		{ProductID: "p1", Qty: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), order.TotalCents)
	assert.Equal(t, 4, stock(t, ms, "p1"))
}

func TestContentionCapSurfaced(t *testing.T) {
	ms, _, em := newFixture(t)
	cs := &contentionStore{Store: ms, failures: 100}
	svc := checkout.NewService(cs, em, "test-api")

	_, err := svc.CreateOrder(context.Background(), "alice", []checkout.CartLine{
		{ProductID: "p1", Qty: 1},
	})
	require.ErrorIs(t, err, checkout.ErrContentionExceeded)
	assert.Equal(t, 5, stock(t, ms, "p1"))
	assert.Empty(t, em.all())
}

func unwrap[T any](ev checkout.Envelope) (T, error) {
	var t T
	err := json.Unmarshal(ev.Payload, &t)
	return t, err
}
