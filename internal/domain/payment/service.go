package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/valyxa/storefront/internal/domain/order"
)

// Service creates payment intents for card orders, attaching the external
// reference to the order exactly once, and routes verified webhook events
// into the order reconciler.
type Service struct {
	orders   *order.Service
	gateway  Gateway
	currency string
}

// NewService creates a payment Service charging in the given currency.
func NewService(orders *order.Service, gateway Gateway, currency string) *Service {
	return &Service{orders: orders, gateway: gateway, currency: currency}
}

// CreateIntent returns the payment intent for the order, creating it on the
// processor if the order has none yet. Calling it again for the same order —
// page reload, double click, concurrent tabs — returns the same intent.
func (s *Service) CreateIntent(ctx context.Context, userID, orderID string) (*Intent, error) {
	o, err := s.orders.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != order.PaymentMethodCard {
		return nil, ErrNotCardOrder
	}
	if o.Status != order.StatusPending {
		return nil, ErrOrderNotPayable
	}

	// Reference already attached: reuse the existing processor intent.
	if o.PaymentIntentID != "" {
		return s.gateway.GetIntent(ctx, o.PaymentIntentID)
	}

	intent, err := s.gateway.CreateIntent(ctx, CreateIntentRequest{
		OrderID:  o.ID,
		Amount:   o.TotalAmount,
		Currency: s.currency,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.orders.AttachPaymentRef(ctx, userID, orderID, intent.ID); err != nil {
		if errors.Is(err, order.ErrPaymentRefConflict) {
			// A concurrent caller attached first. Their intent wins; ours is
			// a duplicate the processor will expire.
			winner, err := s.orders.Get(ctx, userID, orderID)
			if err != nil {
				return nil, err
			}
			zctx.From(ctx).Info("payment intent race lost, reusing attached intent",
				zap.String("order_id", orderID),
				zap.String("payment_intent_id", winner.PaymentIntentID),
			)
			return s.gateway.GetIntent(ctx, winner.PaymentIntentID)
		}
		return nil, errors.Wrap(err, "attach payment reference")
	}

	return intent, nil
}

// ReconcileRedirect handles the client-redirect completion path. The client
// is never trusted about payment outcome: the intent status is read back
// from the processor, and only a processor-confirmed success moves the
// order. Safe to call any number of times and concurrently with the webhook.
func (s *Service) ReconcileRedirect(ctx context.Context, ref string) error {
	intent, err := s.gateway.GetIntent(ctx, ref)
	if err != nil {
		return err
	}
	if intent.Status != IntentStatusSucceeded {
		zctx.From(ctx).Debug("redirect reconciliation found unsettled intent",
			zap.String("payment_intent_id", ref),
			zap.String("intent_status", intent.Status),
		)
		return nil
	}
	return s.orders.ApplyPaymentSucceeded(ctx, ref)
}

// HandleEvent applies a verified webhook event. Event types this service
// does not track are acknowledged and dropped so the processor stops
// redelivering them.
func (s *Service) HandleEvent(ctx context.Context, ev *Event) error {
	switch ev.Type {
	case EventPaymentSucceeded:
		return s.orders.ApplyPaymentSucceeded(ctx, ev.IntentID)
	case EventPaymentFailed:
		return s.orders.ApplyPaymentFailed(ctx, ev.IntentID)
	default:
		zctx.From(ctx).Debug("ignoring webhook event",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
		)
		return nil
	}
}
