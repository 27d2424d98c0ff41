// Package order holds the order aggregate, its status state machine, and the
// checkout/reconciliation service built on top of them.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valyxa/storefront/internal/domain/cart"
)

// Sentinel errors for order operations.
var (
	ErrNotFound             = errors.New("order not found")
	ErrInvalidPaymentMethod = errors.New("payment method must be cash or card")
	ErrPaymentRefConflict   = errors.New("order already has a different payment reference")
)

// InvalidQuantityError indicates a cart line carried a non-positive quantity
// into checkout.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
)

// ParsePaymentMethod validates a raw payment method string.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodCash, PaymentMethodCard:
		return PaymentMethod(s), nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

// Line is an immutable snapshot of a purchased product, frozen at order
// creation time. Catalog edits after checkout never touch these rows.
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

// Order is the persisted result of a checkout. It is append-only: after
// creation only Status, PaymentIntentID, and UpdatedAt ever change, and only
// through the conditional updates in Repository.
type Order struct {
	ID            string
	UserID        string
	TotalAmount   decimal.Decimal
	Status        Status
	PaymentMethod PaymentMethod
	// PaymentIntentID is the external processor's reference. Written at most
	// once per order; empty for cash orders.
	PaymentIntentID string
	Lines           []Line
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewFromSnapshot builds a pending Order from a drained cart snapshot,
// copying name/price/quantity verbatim and computing the total as the exact
// decimal sum of the line subtotals. Returns cart.ErrEmptyCart for an empty
// snapshot. The caller is responsible for persisting the result in the same
// transaction that drained the cart.
func NewFromSnapshot(userID string, method PaymentMethod, snapshot []cart.Line) (*Order, error) {
	if len(snapshot) == 0 {
		return nil, cart.ErrEmptyCart
	}

	now := time.Now().UTC()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        userID,
		Status:        StatusPending,
		PaymentMethod: method,
		TotalAmount:   decimal.Zero,
		Lines:         make([]Line, 0, len(snapshot)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, l := range snapshot {
		if l.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: l.ProductID}
		}
		o.Lines = append(o.Lines, Line{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
		})
		o.TotalAmount = o.TotalAmount.Add(l.Subtotal())
	}

	return o, nil
}

// Repository defines persistence for orders. Every status write is a
// compare-and-set keyed on the caller's expected source statuses; blind
// overwrites do not exist at this layer.
type Repository interface {
	// CreateFromCart atomically drains the user's cart, snapshots live
	// product name/price into order lines, and persists the pending order.
	// Either all of that happens or none of it does. A concurrent checkout
	// against the same cart observes the drained (empty) cart and fails
	// with cart.ErrEmptyCart.
	CreateFromCart(ctx context.Context, userID string, method PaymentMethod) (*Order, error)

	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	GetByPaymentRef(ctx context.Context, ref string) (*Order, error)

	// AttachPaymentRef sets the external payment reference at most once.
	// Attaching the value already stored is a no-op; a different value
	// fails with ErrPaymentRefConflict.
	AttachPaymentRef(ctx context.Context, orderID, ref string) error

	// UpdateStatusIf transitions the order to the target status only if its
	// current status is one of from. Returns false with a nil error when the
	// order exists but no longer matches — the caller decides whether that
	// is a benign no-op or a transition conflict.
	UpdateStatusIf(ctx context.Context, orderID string, from []Status, to Status) (bool, error)

	// UpdateStatusByPaymentRef is UpdateStatusIf keyed by the external
	// payment reference instead of the order ID.
	UpdateStatusByPaymentRef(ctx context.Context, ref string, from, to Status) (bool, error)
}
