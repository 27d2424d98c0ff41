// Package cart exposes the checkout-time view of a user's shopping cart.
// Cart line editing lives elsewhere; this service only reads a cart and
// drains it as part of order creation.
package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrEmptyCart is returned when a checkout is attempted against a cart with
// no lines. A racing checkout that loses the cart drain observes the same
// error, which is what keeps double submissions down to a single order.
var ErrEmptyCart = errors.New("cart is empty")

// Line is one priced cart entry. Name and UnitPrice are read live from the
// catalog at snapshot time and become the frozen order line values.
type Line struct {
	ProductID   string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// Subtotal returns UnitPrice * Quantity as an exact decimal.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Repository defines read access to cart contents. The drain happens inside
// the order repository's checkout transaction, not here.
type Repository interface {
	// Snapshot returns the user's cart joined against live catalog prices.
	// Returns ErrEmptyCart when the cart has no lines.
	Snapshot(ctx context.Context, userID string) ([]Line, error)
}
