package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/valyxa/storefront/internal/domain/cart"
	"github.com/valyxa/storefront/internal/domain/order"
	"github.com/valyxa/storefront/internal/domain/payment"
	"github.com/valyxa/storefront/internal/domain/product"
)

// errorResponse is the wire shape for every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError maps a domain error to its HTTP status and body. Unmapped
// errors become an opaque 500; their details go to the log, not the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidQty        *order.InvalidQuantityError
		invalidTransition *order.InvalidTransitionError
	)

	var status int
	msg := err.Error()

	switch {
	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, payment.ErrNotCardOrder),
		errors.Is(err, payment.ErrOrderNotPayable),
		errors.As(err, &invalidQty):
		status = http.StatusBadRequest

	case errors.Is(err, payment.ErrInvalidSignature):
		status = http.StatusBadRequest

	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound):
		status = http.StatusNotFound

	case errors.Is(err, order.ErrPaymentRefConflict),
		errors.As(err, &invalidTransition):
		status = http.StatusConflict

	case errors.Is(err, payment.ErrGateway):
		status = http.StatusBadGateway
		msg = "payment gateway unavailable"

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		status = http.StatusInternalServerError
		msg = "internal server error"
	}

	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// writeBadRequest reports a malformed request body or parameter.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: http.StatusBadRequest, Message: msg})
}
