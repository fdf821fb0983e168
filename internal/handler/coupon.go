package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lapmart/lapmart-backend/internal/domain/coupon"
)

type appliedCouponDTO struct {
	ID             int64           `json:"id"`
	CartID         int64           `json:"cart_id"`
	CouponID       int64           `json:"coupon_id"`
	Code           string          `json:"code"`
	Type           string          `json:"type"`
	Value          decimal.Decimal `json:"value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

func toAppliedDTO(a *coupon.Applied) appliedCouponDTO {
	return appliedCouponDTO{
		ID:             a.ID,
		CartID:         a.CartID,
		CouponID:       a.CouponID,
		Code:           a.Code,
		Type:           string(a.Type),
		Value:          a.Value,
		DiscountAmount: a.DiscountAmount,
	}
}

type couponCodeRequest struct {
	Code string `json:"code"`
}

// applyCouponToCart applies a code to the caller's active cart, resolving the
// cart from the identity instead of a path parameter.
func (h *Handler) applyCouponToCart(w http.ResponseWriter, r *http.Request) {
	var req couponCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}

	id := IdentityFrom(r.Context())
	det, err := h.carts.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.applyToCart(w, r, req.Code, det.Cart.ID)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	cartID, ok := pathID(r, "cartID")
	if !ok {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return
	}
	var req couponCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	h.applyToCart(w, r, req.Code, cartID)
}

func (h *Handler) applyToCart(w http.ResponseWriter, r *http.Request, code string, cartID int64) {
	a, vErr, err := h.coupons.Apply(r.Context(), code, cartID, IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if vErr != nil {
		writeValidationError(w, vErr)
		return
	}
	writeData(w, http.StatusOK, toAppliedDTO(a))
}

// validateCoupon is the dry-run endpoint: it reports whether the code would
// apply and for how much, without attaching anything.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	cartID, ok := pathID(r, "cartID")
	if !ok {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return
	}
	var req couponCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	amount, vErr, err := h.coupons.Preview(r.Context(), req.Code, cartID, IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if vErr != nil {
		writeValidationError(w, vErr)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"valid":    true,
		"code":     req.Code,
		"discount": amount,
	})
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	cartID, okCart := pathID(r, "cartID")
	couponID, okCoupon := pathID(r, "couponID")
	if !okCart || !okCoupon {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart or coupon id", nil)
		return
	}

	if err := h.coupons.RemoveByCoupon(r.Context(), cartID, couponID); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"removed": true})
}

type createCouponRequest struct {
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Type              string          `json:"type"`
	Value             decimal.Decimal `json:"value"`
	MinOrderAmount    decimal.Decimal `json:"min_order_amount"`
	MaxDiscountAmount decimal.Decimal `json:"max_discount_amount"`
	ValidFrom         time.Time       `json:"valid_from"`
	ValidUntil        time.Time       `json:"valid_until"`
	UsageLimit        int             `json:"usage_limit"`
	UsageLimitPerUser int             `json:"usage_limit_per_user"`
	Stackable         bool            `json:"stackable"`

	ApplicableTo         string   `json:"applicable_to"`
	ApplicableCategories []int64  `json:"applicable_categories"`
	ApplicableProducts   []int64  `json:"applicable_products"`
	ApplicableBrands     []string `json:"applicable_brands"`
	ExcludedCategories   []int64  `json:"excluded_categories"`
	ExcludedProducts     []int64  `json:"excluded_products"`
	ExcludedBrands       []string `json:"excluded_brands"`
}

func validCouponType(t string) bool {
	switch coupon.Type(t) {
	case coupon.TypePercentage, coupon.TypeFixedAmount, coupon.TypeFreeShipping, coupon.TypeBuyXGetY:
		return true
	}
	return false
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" || !validCouponType(req.Type) {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "code and a valid type are required", nil)
		return
	}
	if req.ApplicableTo == "" {
		req.ApplicableTo = "all"
	}

	c := &coupon.Coupon{
		Code:                 req.Code,
		Name:                 req.Name,
		Description:          req.Description,
		Type:                 coupon.Type(req.Type),
		Value:                req.Value,
		MinOrderAmount:       req.MinOrderAmount,
		MaxDiscountAmount:    req.MaxDiscountAmount,
		ValidFrom:            req.ValidFrom,
		ValidUntil:           req.ValidUntil,
		UsageLimit:           req.UsageLimit,
		UsageLimitPerUser:    req.UsageLimitPerUser,
		Stackable:            req.Stackable,
		IsActive:             true,
		ApplicableTo:         req.ApplicableTo,
		ApplicableCategories: req.ApplicableCategories,
		ApplicableProducts:   req.ApplicableProducts,
		ApplicableBrands:     req.ApplicableBrands,
		ExcludedCategories:   req.ExcludedCategories,
		ExcludedProducts:     req.ExcludedProducts,
		ExcludedBrands:       req.ExcludedBrands,
	}
	if uid, ok := IdentityFrom(r.Context()).UserID(); ok {
		c.CreatedBy = uid
	}

	vErr, err := h.coupons.CreateCoupon(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if vErr != nil {
		writeValidationError(w, vErr)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"id": c.ID, "code": c.Code})
}

func (h *Handler) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	couponID, ok := pathID(r, "couponID")
	if !ok {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid coupon id", nil)
		return
	}
	if err := h.coupons.DeactivateCoupon(r.Context(), couponID); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deactivated": true})
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	couponID, ok := pathID(r, "couponID")
	if !ok {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid coupon id", nil)
		return
	}
	vErr, err := h.coupons.DeleteCoupon(r.Context(), couponID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if vErr != nil {
		writeValidationError(w, vErr)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}
