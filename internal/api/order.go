package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valyxa/storefront/internal/domain/order"
)

type placeOrderRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

type attachPaymentRefRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderLineResponse struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	Status          string              `json:"status"`
	PaymentMethod   string              `json:"paymentMethod"`
	PaymentIntentID string              `json:"paymentIntentId,omitempty"`
	Lines           []orderLineResponse `json:"lines"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	lines := make([]orderLineResponse, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = orderLineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
		}
	}
	return orderResponse{
		ID:              o.ID,
		TotalAmount:     o.TotalAmount,
		Status:          string(o.Status),
		PaymentMethod:   string(o.PaymentMethod),
		PaymentIntentID: o.PaymentIntentID,
		Lines:           lines,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// placeOrder converts the caller's cart into a pending order.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	o, err := h.orders.Checkout(r.Context(), userIDFrom(r.Context()), req.PaymentMethod)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// listOrders returns the caller's order history, newest first.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// getOrder returns a single order owned by the caller.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// attachPaymentRef records the processor's payment reference on the order.
// This is the client-redirect completion path: after the processor redirects
// the customer back, the storefront posts the intent ID it was handed.
func (h *Handler) attachPaymentRef(w http.ResponseWriter, r *http.Request) {
	var req attachPaymentRefRequest
	if err := decodeJSON(r, &req); err != nil || req.PaymentIntentID == "" {
		writeBadRequest(w, "paymentIntentId required")
		return
	}

	o, err := h.orders.AttachPaymentRef(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "orderID"), req.PaymentIntentID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// The reference is attached; reconcile in case the processor already
	// settled this intent before the redirect landed here. Failure is not
	// fatal: the attach is durable and the webhook path converges on its own.
	if err := h.payments.ReconcileRedirect(r.Context(), req.PaymentIntentID); err != nil {
		zctx.From(r.Context()).Warn("redirect reconciliation failed", zap.Error(err))
	}

	o, err = h.orders.Get(r.Context(), userIDFrom(r.Context()), o.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// updateOrderStatus performs an operator transition (shipped, delivered,
// cancelled) on the caller's order.
func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	userID := userIDFrom(r.Context())
	orderID := chi.URLParam(r, "orderID")

	// Ownership first so foreign orders 404 instead of leaking state.
	if _, err := h.orders.Get(r.Context(), userID, orderID); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.orders.ApplyStatusChange(r.Context(), orderID, req.Status); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
