package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/elishop/go-checkout/internal/checkout"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements checkout.Store on postgres. Reservation takes a row-level
// lock (FOR UPDATE) per product; the decrement and the order insert share a
// transaction, so a failed line rolls everything back.
type Store struct{ DB *pgxpool.Pool }

func (s *Store) Begin(ctx context.Context) (checkout.Tx, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, storeErr(err)
	}
	return &storeTx{tx: tx}, nil
}

func (s *Store) OwnerExists(ctx context.Context, ownerID string) (bool, error) {
	var one int
	err := s.DB.QueryRow(ctx, `SELECT 1 FROM users WHERE id=$1`, ownerID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err)
	}
	return true, nil
}

func (s *Store) OrdersForOwner(ctx context.Context, ownerID string) ([]checkout.Order, error) {
	return s.queryOrders(ctx,
		`SELECT id, owner_id, total_cents, created_at FROM orders
		 WHERE owner_id=$1 ORDER BY created_at, id`, ownerID)
}

func (s *Store) AllOrders(ctx context.Context) ([]checkout.Order, error) {
	return s.queryOrders(ctx,
		`SELECT id, owner_id, total_cents, created_at FROM orders
		 ORDER BY created_at, id`)
}

func (s *Store) OrderByID(ctx context.Context, orderID string) (checkout.Order, error) {
	out, err := s.queryOrders(ctx,
		`SELECT id, owner_id, total_cents, created_at FROM orders WHERE id=$1`, orderID)
	if err != nil {
		return checkout.Order{}, err
	}
	if len(out) == 0 {
		return checkout.Order{}, checkout.ErrOrderNotFound
	}
	return out[0], nil
}

func (s *Store) queryOrders(ctx context.Context, sql string, args ...any) ([]checkout.Order, error) {
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []checkout.Order
	index := map[string]int{}
	ids := []string{}
	for rows.Next() {
		var o checkout.Order
		if err := rows.Scan(&o.ID, &o.OwnerID, &o.TotalCents, &o.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		index[o.ID] = len(out)
		ids = append(ids, o.ID)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	if len(out) == 0 {
		return out, nil
	}

	irows, err := s.DB.Query(ctx,
		`SELECT order_id, product_id, name, price_cents, qty FROM order_items
		 WHERE order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, storeErr(err)
	}
	defer irows.Close()
	for irows.Next() {
		var orderID string
		var it checkout.OrderItem
		if err := irows.Scan(&orderID, &it.ProductID, &it.Name, &it.PriceCents, &it.Qty); err != nil {
			return nil, storeErr(err)
		}
		i := index[orderID]
		out[i].Items = append(out[i].Items, it)
	}
	if err := irows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

type storeTx struct{ tx pgx.Tx }

func (t *storeTx) ReserveStock(ctx context.Context, productID string, qty int) (checkout.Snapshot, error) {
	var (
		name  string
		price int64
		stock int
	)
	err := t.tx.QueryRow(ctx,
		`SELECT name, price_cents, stock FROM products WHERE id=$1 FOR UPDATE`,
		productID).Scan(&name, &price, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkout.Snapshot{}, &checkout.LineError{
			ProductID: productID, Required: qty, Err: checkout.ErrProductNotFound,
		}
	}
	if err != nil {
		return checkout.Snapshot{}, storeErr(err)
	}
	if stock < qty {
		return checkout.Snapshot{}, &checkout.LineError{
			ProductID: productID, Required: qty, Available: stock,
			Err: checkout.ErrInsufficientStock,
		}
	}
	if _, err := t.tx.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`,
		productID, qty); err != nil {
		return checkout.Snapshot{}, storeErr(err)
	}
	return checkout.Snapshot{Name: name, PriceCents: price}, nil
}

func (t *storeTx) InsertOrder(ctx context.Context, o *checkout.Order) error {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO orders(id, owner_id, total_cents, created_at) VALUES ($1,$2,$3,$4)`,
		o.ID, o.OwnerID, o.TotalCents, o.CreatedAt); err != nil {
		return storeErr(err)
	}
	for _, it := range o.Items {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO order_items(order_id, product_id, name, price_cents, qty)
			 VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.ProductID, it.Name, it.PriceCents, it.Qty); err != nil {
			return storeErr(err)
		}
	}
	return nil
}

func (t *storeTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (t *storeTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return storeErr(err)
}

// storeErr maps transient conflicts (serialization failure, deadlock, lock
// timeout) to checkout.ErrContention so the assembler can retry; everything
// else counts as the store being unavailable.
func storeErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", checkout.ErrContention, pgErr.Code)
		}
	}
	return fmt.Errorf("%w: %v", checkout.ErrStoreUnavailable, err)
}
