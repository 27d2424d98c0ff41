package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/valyxa/storefront/internal/domain/cart"
)

type cartLineResponse struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

type cartResponse struct {
	Lines    []cartLineResponse `json:"lines"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

// getCart returns the caller's current cart priced against the live catalog.
// An empty cart is a normal 200, not an error; only checkout treats it as a
// failure.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.Snapshot(r.Context(), userIDFrom(r.Context()))
	if err != nil && !errors.Is(err, cart.ErrEmptyCart) {
		writeError(w, r, err)
		return
	}

	resp := cartResponse{Lines: make([]cartLineResponse, len(lines)), Subtotal: decimal.Zero}
	for i, l := range lines {
		resp.Lines[i] = cartLineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
		}
		resp.Subtotal = resp.Subtotal.Add(l.Subtotal())
	}
	writeJSON(w, http.StatusOK, resp)
}
