// Package payment defines the gateway-facing types and the intent creation
// service sitting between orders and the external card processor.
package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for the payment path.
var (
	// ErrGateway wraps processor transport failures and 5xx responses. The
	// call is not retried here; the caller sees the failure immediately.
	ErrGateway = errors.New("payment gateway unavailable")
	// ErrInvalidSignature rejects webhook payloads that fail verification.
	// Unverifiable payloads never reach the reconciler.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrNotCardOrder rejects intent creation for cash orders.
	ErrNotCardOrder = errors.New("order is not payable by card")
	// ErrOrderNotPayable rejects intent creation for orders no longer
	// awaiting payment.
	ErrOrderNotPayable = errors.New("order is not awaiting payment")
)

// Intent mirrors the processor-side payment intent record.
type Intent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
	Status       string
}

// CreateIntentRequest carries what the gateway needs to open an intent.
type CreateIntentRequest struct {
	// OrderID keys the processor-side idempotency: retrying intent creation
	// for the same order must not open a second intent.
	OrderID  string
	Amount   decimal.Decimal
	Currency string
}

// Gateway is the external card processor.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
}

// IntentStatusSucceeded is the processor-side status of a settled intent.
const IntentStatusSucceeded = "succeeded"

// Webhook event types this service reacts to.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Event is a verified, decoded webhook notification.
type Event struct {
	ID           string
	Type         string
	IntentID     string
	IntentStatus string
}

// EventVerifier authenticates and decodes a raw webhook payload.
type EventVerifier interface {
	VerifyEvent(payload []byte, sigHeader string) (*Event, error)
}

// MinorUnits converts a 2-decimal monetary amount to integer minor currency
// units (25.00 → 2500), as the processor expects.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}
