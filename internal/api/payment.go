package api

import (
	"io"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// maxWebhookBody caps the webhook payload read. Processor events are small;
// anything larger is not a legitimate delivery.
const maxWebhookBody = 1 << 16

type createIntentRequest struct {
	OrderID string `json:"orderId"`
}

type createIntentResponse struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
}

// createPaymentIntent opens (or returns) the processor intent for a pending
// card order. Repeated calls for the same order return the same intent.
func (h *Handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := decodeJSON(r, &req); err != nil || req.OrderID == "" {
		writeBadRequest(w, "orderId required")
		return
	}

	intent, err := h.payments.CreateIntent(r.Context(), userIDFrom(r.Context()), req.OrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, createIntentResponse{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.AmountMinor,
		Currency:        intent.Currency,
		Status:          intent.Status,
	})
}

// handleWebhook receives processor notifications. The signature is the only
// authentication; unverifiable payloads are rejected before any state is
// touched. A 2xx acknowledges the delivery, anything else makes the
// processor redeliver.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeBadRequest(w, "unreadable payload")
		return
	}

	ev, err := h.webhook.VerifyEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		zctx.From(r.Context()).Warn("webhook rejected", zap.Error(err))
		writeError(w, r, err)
		return
	}

	if err := h.payments.HandleEvent(r.Context(), ev); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
