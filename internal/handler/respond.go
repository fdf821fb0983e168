package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/lapmart/lapmart-backend/internal/domain/cart"
	"github.com/lapmart/lapmart-backend/internal/domain/catalog"
	"github.com/lapmart/lapmart-backend/internal/domain/checkout"
	"github.com/lapmart/lapmart-backend/internal/domain/coupon"
	"github.com/lapmart/lapmart-backend/internal/domain/order"
)

// Success responses are {"success":true,"data":...}; business failures are
// {"success":false,"code":...,"message":...} plus failure-specific fields.
// Infrastructure failures are a generic 500 so internals never leak.

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeFail(w http.ResponseWriter, status int, code, message string, extra map[string]any) {
	body := map[string]any{"success": false, "code": code, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// validationStatus picks the HTTP status for a coupon rejection code.
func validationStatus(code coupon.FailCode) int {
	switch code {
	case coupon.CodeNotFound, coupon.CodeCartNotFound:
		return http.StatusNotFound
	case coupon.CodeAlreadyApplied, coupon.CodeNotStackable, coupon.CodeDuplicateCode, coupon.CodeInUse:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeValidationError(w http.ResponseWriter, vErr *coupon.ValidationError) {
	extra := map[string]any{}
	if vErr.Code == coupon.CodeMinimumOrderNotMet {
		extra["shortfall"] = vErr.Shortfall.StringFixed(2)
	}
	if len(vErr.ConflictingCodes) > 0 {
		extra["conflicting_codes"] = vErr.ConflictingCodes
	}
	writeFail(w, validationStatus(vErr.Code), string(vErr.Code), vErr.Message, extra)
}

// writeError maps domain errors to envelopes; anything unrecognized is a 500
// logged with its full chain.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr  *checkout.InsufficientStockError
		methodErr *checkout.UnsupportedPaymentMethodError
	)
	switch {
	case errors.Is(err, cart.ErrCartNotFound), errors.Is(err, coupon.ErrCartNotFound):
		writeFail(w, http.StatusNotFound, "CART_NOT_FOUND", "cart not found", nil)
	case errors.Is(err, cart.ErrItemNotFound):
		writeFail(w, http.StatusNotFound, "CART_ITEM_NOT_FOUND", "cart item not found", nil)
	case errors.Is(err, catalog.ErrProductNotFound):
		writeFail(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	case errors.Is(err, catalog.ErrVariantNotFound):
		writeFail(w, http.StatusNotFound, "VARIANT_NOT_FOUND", "product variant not found", nil)
	case errors.Is(err, coupon.ErrCouponNotFound):
		writeFail(w, http.StatusNotFound, "COUPON_NOT_FOUND", "coupon not found", nil)
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, checkout.ErrNotOrderOwner):
		// Foreign orders 404 rather than 403 so ids cannot be probed.
		writeFail(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
	case errors.Is(err, checkout.ErrAddressNotFound):
		writeFail(w, http.StatusNotFound, "ADDRESS_NOT_FOUND", "address not found", nil)
	case errors.Is(err, checkout.ErrEmptyCart):
		writeFail(w, http.StatusBadRequest, "EMPTY_CART", "cart is empty", nil)
	case errors.Is(err, checkout.ErrShippingAddressRequired):
		writeFail(w, http.StatusBadRequest, "SHIPPING_ADDRESS_REQUIRED", "shipping address is required", nil)
	case errors.Is(err, checkout.ErrInvalidSignature):
		writeFail(w, http.StatusBadRequest, "INVALID_PAYMENT_SIGNATURE", "payment signature verification failed", nil)
	case errors.Is(err, checkout.ErrPaymentNotFound):
		writeFail(w, http.StatusConflict, "PAYMENT_NOT_INITIATED", "no payment attempt recorded for this order", nil)
	case errors.Is(err, order.ErrInvalidTransition):
		writeFail(w, http.StatusConflict, "INVALID_ORDER_STATE", "order is not in a state that allows this action", nil)
	case errors.As(err, &stockErr):
		writeFail(w, http.StatusConflict, "INSUFFICIENT_STOCK", stockErr.Error(), map[string]any{
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.As(err, &methodErr):
		writeFail(w, http.StatusBadRequest, "UNSUPPORTED_PAYMENT_METHOD", methodErr.Error(), nil)
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeFail(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return false
	}
	return true
}
