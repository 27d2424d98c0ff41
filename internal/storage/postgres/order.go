package postgres

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/valyxa/storefront/internal/domain/cart"
	"github.com/valyxa/storefront/internal/domain/order"
)

const (
	// drainCartSQL locks and removes the user's cart rows in one statement.
	// A concurrent checkout blocks on the row locks and then sees an empty
	// cart, which is the server-side duplicate-order guard.
	drainCartSQL = `DELETE FROM cart_lines WHERE user_id = $1
		RETURNING product_id, quantity`

	snapshotProductsSQL = `SELECT id, name, price FROM products WHERE id = ANY($1)`

	insertOrderSQL = `INSERT INTO orders
		(id, user_id, total_amount, status, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderLineSQL = `INSERT INTO order_lines
		(order_id, position, product_id, product_name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderSQL = `SELECT id, user_id, total_amount, status, payment_method,
		COALESCE(payment_intent_id, ''), created_at, updated_at
		FROM orders WHERE id = $1`

	getOrderByPaymentRefSQL = `SELECT id, user_id, total_amount, status, payment_method,
		COALESCE(payment_intent_id, ''), created_at, updated_at
		FROM orders WHERE payment_intent_id = $1`

	listOrdersByUserSQL = `SELECT id, user_id, total_amount, status, payment_method,
		COALESCE(payment_intent_id, ''), created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`

	listOrderLinesSQL = `SELECT order_id, product_id, product_name, unit_price, quantity
		FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, position`

	// attachPaymentRefSQL writes the reference only into the NULL slot, so a
	// second attach with a different value affects zero rows instead of
	// overwriting history.
	attachPaymentRefSQL = `UPDATE orders SET payment_intent_id = $2, updated_at = now()
		WHERE id = $1 AND payment_intent_id IS NULL`

	getPaymentRefSQL = `SELECT COALESCE(payment_intent_id, '') FROM orders WHERE id = $1`

	// Compare-and-set transitions: the WHERE clause carries the expected
	// source statuses, so two racing callers cannot both win.
	casStatusByIDSQL = `UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`

	casStatusByPaymentRefSQL = `UPDATE orders SET status = $2, updated_at = now()
		WHERE payment_intent_id = $1 AND status = $3`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	orderExistsByPaymentRefSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE payment_intent_id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateFromCart drains the cart, snapshots live product data, and persists
// the pending order with its lines — all in one transaction. Any failure
// rolls the whole thing back: no order without lines, no drained cart
// without an order.
func (r *OrderRepository) CreateFromCart(ctx context.Context, userID string, method order.PaymentMethod) (*order.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin checkout transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snapshot, err := drainCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	o, err := order.NewFromSnapshot(userID, method, snapshot)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, o.TotalAmount, string(o.Status), string(o.PaymentMethod),
		o.CreatedAt, o.UpdatedAt,
	); err != nil {
		return nil, errors.Wrapf(err, "insert order %q", o.ID)
	}

	for i, l := range o.Lines {
		if _, err := tx.Exec(ctx, insertOrderLineSQL,
			o.ID, i, l.ProductID, l.ProductName, l.UnitPrice, l.Quantity,
		); err != nil {
			return nil, errors.Wrapf(err, "insert order line %d", i)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit checkout transaction")
	}
	return o, nil
}

// drainCart removes the user's cart rows and joins them against live product
// name/price inside the same transaction. Lines come back sorted by product
// ID so order line positions are deterministic.
func drainCart(ctx context.Context, tx pgx.Tx, userID string) ([]cart.Line, error) {
	rows, err := tx.Query(ctx, drainCartSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "drain cart")
	}

	type drained struct {
		productID string
		quantity  int
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (drained, error) {
		var d drained
		err := row.Scan(&d.productID, &d.quantity)
		return d, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "drain cart")
	}
	if len(items) == 0 {
		return nil, cart.ErrEmptyCart
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.productID
	}

	prodRows, err := tx.Query(ctx, snapshotProductsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot products")
	}

	type catalogRow struct {
		id    string
		name  string
		price decimal.Decimal
	}
	catalog, err := pgx.CollectRows(prodRows, func(row pgx.CollectableRow) (catalogRow, error) {
		var c catalogRow
		err := row.Scan(&c.id, &c.name, &c.price)
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "snapshot products")
	}

	byID := make(map[string]catalogRow, len(catalog))
	for _, c := range catalog {
		byID[c.id] = c
	}

	sort.Slice(items, func(i, j int) bool { return items[i].productID < items[j].productID })

	lines := make([]cart.Line, 0, len(items))
	for _, it := range items {
		c, ok := byID[it.productID]
		if !ok {
			// The FK makes this unreachable; guard anyway so a schema drift
			// fails loudly instead of producing a short order.
			return nil, errors.Errorf("product %q missing from catalog", it.productID)
		}
		lines = append(lines, cart.Line{
			ProductID:   c.id,
			ProductName: c.name,
			UnitPrice:   c.price,
			Quantity:    it.quantity,
		})
	}
	return lines, nil
}

// Get returns a single order with its lines.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// GetByPaymentRef returns the order carrying the external payment reference.
func (r *OrderRepository) GetByPaymentRef(ctx context.Context, ref string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByPaymentRefSQL, ref)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}

	if err := r.attachLines(ctx, []*order.Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByUser returns the user's orders with lines, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	refs := make([]*order.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	if err := r.attachLines(ctx, refs); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachLines loads order lines for all given orders in one query.
func (r *OrderRepository) attachLines(ctx context.Context, orders []*order.Order) error {
	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := r.pool.Query(ctx, listOrderLinesSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order lines")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			l       order.Line
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.ProductName, &l.UnitPrice, &l.Quantity); err != nil {
			return errors.Wrap(err, "scan order line")
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return errors.Wrap(rows.Err(), "list order lines")
}

// AttachPaymentRef sets the external payment reference at most once.
func (r *OrderRepository) AttachPaymentRef(ctx context.Context, orderID, ref string) error {
	tag, err := r.pool.Exec(ctx, attachPaymentRefSQL, orderID, ref)
	if err != nil {
		return errors.Wrap(err, "attach payment reference")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: the slot was already taken, or the order is gone.
	var current string
	if err := r.pool.QueryRow(ctx, getPaymentRefSQL, orderID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return errors.Wrap(err, "read payment reference")
	}
	if current == ref {
		return nil // idempotent re-attach
	}
	return order.ErrPaymentRefConflict
}

// UpdateStatusIf performs a compare-and-set status transition by order ID.
func (r *OrderRepository) UpdateStatusIf(ctx context.Context, orderID string, from []order.Status, to order.Status) (bool, error) {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}

	tag, err := r.pool.Exec(ctx, casStatusByIDSQL, orderID, string(to), sources)
	if err != nil {
		return false, errors.Wrap(err, "update order status")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, orderID).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check order exists")
	}
	if !exists {
		return false, order.ErrNotFound
	}
	return false, nil
}

// UpdateStatusByPaymentRef performs a compare-and-set status transition
// keyed by the external payment reference.
func (r *OrderRepository) UpdateStatusByPaymentRef(ctx context.Context, ref string, from, to order.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, casStatusByPaymentRefSQL, ref, string(to), string(from))
	if err != nil {
		return false, errors.Wrap(err, "update order status by payment reference")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsByPaymentRefSQL, ref).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check order exists")
	}
	if !exists {
		return false, order.ErrNotFound
	}
	return false, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
		method string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &status, &method,
		&o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	return o, err
}
