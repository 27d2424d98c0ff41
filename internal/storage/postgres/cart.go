package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valyxa/storefront/internal/domain/cart"
)

const snapshotCartSQL = `SELECT cl.product_id, p.name, p.price, cl.quantity
	FROM cart_lines cl
	JOIN products p ON p.id = cl.product_id
	WHERE cl.user_id = $1
	ORDER BY cl.added_at, cl.product_id`

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements the read-only cart view backed by PostgreSQL.
// Product name and price come from the live catalog at query time.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Snapshot returns the user's cart lines joined against live catalog prices.
func (r *CartRepository) Snapshot(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, snapshotCartSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot cart")
	}

	lines, err := pgx.CollectRows(rows, scanCartLine)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot cart")
	}
	if len(lines) == 0 {
		return nil, cart.ErrEmptyCart
	}
	return lines, nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ProductID, &l.ProductName, &l.UnitPrice, &l.Quantity)
	return l, err
}
