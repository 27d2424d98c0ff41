package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// InvalidTransitionError indicates a requested status is not reachable from
// the order's current status.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// EventSink receives order lifecycle notifications after the corresponding
// state is committed. Implementations must not fail the calling operation;
// the store is the source of truth, events are best-effort.
type EventSink interface {
	OrderCreated(ctx context.Context, o *Order)
	OrderPaid(ctx context.Context, o *Order)
	OrderStatusChanged(ctx context.Context, o *Order)
}

// nopSink drops all events. Used when no broker is configured.
type nopSink struct{}

func (nopSink) OrderCreated(context.Context, *Order)       {}
func (nopSink) OrderPaid(context.Context, *Order)          {}
func (nopSink) OrderStatusChanged(context.Context, *Order) {}

// Service implements checkout (the order factory) and status reconciliation.
// It holds no state of its own: correctness under concurrent callers comes
// entirely from the repository's conditional updates.
type Service struct {
	orders Repository
	events EventSink
}

// NewService creates an order Service. A nil sink disables event publishing.
func NewService(orders Repository, sink EventSink) *Service {
	if sink == nil {
		sink = nopSink{}
	}
	return &Service{orders: orders, events: sink}
}

// Checkout converts the user's cart into a pending order in one transaction.
// The raw payment method is validated here so that every entry point shares
// the same rejection.
func (s *Service) Checkout(ctx context.Context, userID, paymentMethod string) (*Order, error) {
	method, err := ParsePaymentMethod(paymentMethod)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.CreateFromCart(ctx, userID, method)
	if err != nil {
		return nil, errors.Wrap(err, "create order from cart")
	}

	zctx.From(ctx).Info("order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("payment_method", string(o.PaymentMethod)),
		zap.String("total", o.TotalAmount.String()),
	)
	s.events.OrderCreated(ctx, o)

	return o, nil
}

// Get returns the order if it belongs to the user. Orders of other users are
// indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// AttachPaymentRef records the external payment reference on the order.
// Repeating the call with the same reference is a no-op; a different
// reference fails with ErrPaymentRefConflict.
func (s *Service) AttachPaymentRef(ctx context.Context, userID, orderID, ref string) (*Order, error) {
	if _, err := s.Get(ctx, userID, orderID); err != nil {
		return nil, err
	}
	if err := s.orders.AttachPaymentRef(ctx, orderID, ref); err != nil {
		return nil, err
	}
	return s.orders.Get(ctx, orderID)
}

// ApplyPaymentSucceeded moves the order identified by the external payment
// reference from pending to paid, exactly once. Both completion paths — the
// processor webhook and the client redirect — funnel into this method, in
// any order and any number of times.
func (s *Service) ApplyPaymentSucceeded(ctx context.Context, ref string) error {
	lg := zctx.From(ctx).With(zap.String("payment_intent_id", ref))

	moved, err := s.orders.UpdateStatusByPaymentRef(ctx, ref, StatusPending, StatusPaid)
	switch {
	case errors.Is(err, ErrNotFound):
		// The webhook can outrun the client-redirect path that attaches the
		// reference. Not an error: the other path will reconcile.
		lg.Warn("payment succeeded for unknown payment reference")
		return nil
	case err != nil:
		return errors.Wrap(err, "mark order paid")
	case moved:
		o, err := s.orders.GetByPaymentRef(ctx, ref)
		if err != nil {
			return errors.Wrap(err, "load paid order")
		}
		lg.Info("order paid", zap.String("order_id", o.ID))
		s.events.OrderPaid(ctx, o)
		return nil
	}

	// Lost the compare-and-set: the desired state already holds, or the
	// order left pending another way. Either way this delivery is done.
	o, err := s.orders.GetByPaymentRef(ctx, ref)
	if err != nil {
		return errors.Wrap(err, "load order after no-op transition")
	}
	if o.Status == StatusCancelled {
		lg.Warn("payment succeeded for cancelled order", zap.String("order_id", o.ID))
	} else {
		lg.Debug("payment confirmation redelivered", zap.String("order_id", o.ID))
	}
	return nil
}

// ApplyPaymentFailed records a failed payment attempt. The order stays
// pending: the processor lets the customer retry on the same intent, so a
// failure is not a terminal signal. Cancellation stays an explicit
// transition.
func (s *Service) ApplyPaymentFailed(ctx context.Context, ref string) error {
	lg := zctx.From(ctx).With(zap.String("payment_intent_id", ref))

	o, err := s.orders.GetByPaymentRef(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		lg.Warn("payment failed for unknown payment reference")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load order for failed payment")
	}

	lg.Info("payment attempt failed",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
	)
	return nil
}

// ApplyStatusChange performs an operator-driven transition (shipped,
// delivered, cancelled) as a compare-and-set keyed on every status the
// target is reachable from. A lost race where the order already sits in the
// requested status is reported as success.
func (s *Service) ApplyStatusChange(ctx context.Context, orderID, rawStatus string) error {
	to, err := ParseStatus(rawStatus)
	if err != nil {
		return err
	}

	from := SourcesFor(to)
	if len(from) == 0 {
		// pending is nobody's target.
		cur, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		return &InvalidTransitionError{From: cur.Status, To: to}
	}

	moved, err := s.orders.UpdateStatusIf(ctx, orderID, from, to)
	if err != nil {
		return err
	}
	if moved {
		o, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "load order after transition")
		}
		zctx.From(ctx).Info("order status changed",
			zap.String("order_id", o.ID),
			zap.String("status", string(o.Status)),
		)
		s.events.OrderStatusChanged(ctx, o)
		return nil
	}

	cur, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if cur.Status == to {
		// Another caller already got there. The desired end state holds.
		return nil
	}
	return &InvalidTransitionError{From: cur.Status, To: to}
}
