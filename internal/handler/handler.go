// Package handler exposes the API over a method-pattern ServeMux with a
// JSON envelope on every response.
package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lapmart/lapmart-backend/internal/domain/cart"
	"github.com/lapmart/lapmart-backend/internal/domain/checkout"
	"github.com/lapmart/lapmart-backend/internal/domain/coupon"
)

// Handler routes API requests to the domain services.
type Handler struct {
	carts    *cart.Service
	coupons  *coupon.Service
	checkout *checkout.Service
	lg       *zap.Logger
}

func New(carts *cart.Service, coupons *coupon.Service, checkoutSvc *checkout.Service, lg *zap.Logger) *Handler {
	return &Handler{
		carts:    carts,
		coupons:  coupons,
		checkout: checkoutSvc,
		lg:       lg,
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("POST /api/cart/add", h.addItem)
	mux.HandleFunc("PUT /api/cart/items/{itemID}", h.updateItem)
	mux.HandleFunc("DELETE /api/cart/items/{itemID}", h.removeItem)
	mux.HandleFunc("DELETE /api/cart/clear", h.clearCart)

	mux.HandleFunc("POST /api/cart/coupon", h.applyCouponToCart)
	mux.HandleFunc("POST /api/coupons/validate/{cartID}", h.validateCoupon)
	mux.HandleFunc("POST /api/coupons/apply/{cartID}", h.applyCoupon)
	mux.HandleFunc("DELETE /api/coupons/remove/{cartID}/{couponID}", h.removeCoupon)

	mux.HandleFunc("POST /api/checkout/init", h.checkoutInit)
	mux.HandleFunc("POST /api/checkout/pay", h.checkoutPay)
	mux.HandleFunc("POST /api/checkout/confirm", h.checkoutConfirm)
	mux.HandleFunc("POST /api/checkout/cancel", h.checkoutCancel)

	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{orderID}", h.getOrder)

	mux.HandleFunc("POST /api/admin/coupons", adminOnly(h.createCoupon))
	mux.HandleFunc("POST /api/admin/coupons/{couponID}/deactivate", adminOnly(h.deactivateCoupon))
	mux.HandleFunc("DELETE /api/admin/coupons/{couponID}", adminOnly(h.deleteCoupon))
}

// adminOnly guards coupon management: only bearer tokens carrying the admin
// role pass, everyone else gets a uniform 403.
func adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			writeFail(w, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
			return
		}
		next(w, r)
	}
}
