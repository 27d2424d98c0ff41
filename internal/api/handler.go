// Package api exposes the HTTP surface: checkout, order reads, status
// transitions, payment intent creation, and the processor webhook. Handlers
// decode and validate transport concerns, then delegate to the domain
// services; every business rule lives below this package.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/valyxa/storefront/internal/domain/cart"
	"github.com/valyxa/storefront/internal/domain/order"
	"github.com/valyxa/storefront/internal/domain/payment"
	"github.com/valyxa/storefront/internal/domain/product"
)

// Handler wires the domain services into HTTP endpoints.
type Handler struct {
	orders   *order.Service
	payments *payment.Service
	carts    cart.Repository
	products product.Repository
	webhook  payment.EventVerifier
	auth     *Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *order.Service, payments *payment.Service, carts cart.Repository, products product.Repository, webhook payment.EventVerifier, auth *Authenticator) *Handler {
	return &Handler{
		orders:   orders,
		payments: payments,
		carts:    carts,
		products: products,
		webhook:  webhook,
		auth:     auth,
	}
}

// Routes mounts all API endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			r.Get("/cart", h.getCart)

			r.Post("/orders", h.placeOrder)
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{orderID}", h.getOrder)
			r.Put("/orders/{orderID}", h.attachPaymentRef)
			r.Put("/orders/{orderID}/status", h.updateOrderStatus)

			r.Post("/payment/create-payment-intent", h.createPaymentIntent)
		})

		// Public surface: the catalog, and the webhook (the processor
		// authenticates with its signature, not a bearer token).
		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)

		r.Post("/payment/webhook", h.handleWebhook)
	})
}

// writeJSON serializes v with the given HTTP status. Encoding failures are
// not recoverable at this point; the status line is already gone.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
