package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/lapmart/lapmart-backend/internal/domain/cart"
)

type cartItemDTO struct {
	ID                 int64             `json:"id"`
	ProductID          int64             `json:"product_id"`
	VariantID          *int64            `json:"variant_id,omitempty"`
	Quantity           int               `json:"quantity"`
	UnitPrice          decimal.Decimal   `json:"unit_price"`
	UnitMRP            decimal.Decimal   `json:"unit_mrp"`
	DiscountPercent    int               `json:"discount_percent"`
	GSTPercent         int               `json:"gst_percent"`
	LineTotal          decimal.Decimal   `json:"line_total"`
	LineDiscount       decimal.Decimal   `json:"line_discount"`
	LineTax            decimal.Decimal   `json:"line_tax"`
	SelectedAttributes map[string]string `json:"selected_attributes,omitempty"`
}

type cartCouponDTO struct {
	ID             int64           `json:"id"`
	CouponID       int64           `json:"coupon_id"`
	Code           string          `json:"code"`
	Type           string          `json:"type"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type cartDTO struct {
	ID             int64           `json:"id"`
	Status         string          `json:"status"`
	Currency       string          `json:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ItemCount      int             `json:"item_count"`
	Items          []cartItemDTO   `json:"items"`
	Coupons        []cartCouponDTO `json:"coupons"`
}

func toCartDTO(det *cart.Detail) cartDTO {
	dto := cartDTO{
		ID:             det.Cart.ID,
		Status:         string(det.Cart.Status),
		Currency:       det.Cart.Currency,
		Subtotal:       det.Cart.Subtotal,
		TaxAmount:      det.Cart.TaxAmount,
		DiscountAmount: det.Cart.DiscountAmount,
		ShippingAmount: det.Cart.ShippingAmount,
		TotalAmount:    det.Cart.TotalAmount,
		ItemCount:      det.Cart.ItemCount,
		Items:          make([]cartItemDTO, 0, len(det.Items)),
		Coupons:        make([]cartCouponDTO, 0, len(det.Coupons)),
	}
	for _, it := range det.Items {
		dto.Items = append(dto.Items, cartItemDTO{
			ID:                 it.ID,
			ProductID:          it.ProductID,
			VariantID:          it.VariantID,
			Quantity:           it.Quantity,
			UnitPrice:          it.UnitPrice,
			UnitMRP:            it.UnitMRP,
			DiscountPercent:    it.UnitDiscountPercent,
			GSTPercent:         it.UnitGSTPercent,
			LineTotal:          it.LineTotal,
			LineDiscount:       it.LineDiscount,
			LineTax:            it.LineTax,
			SelectedAttributes: it.SelectedAttributes,
		})
	}
	for _, c := range det.Coupons {
		dto.Coupons = append(dto.Coupons, cartCouponDTO{
			ID:             c.ID,
			CouponID:       c.CouponID,
			Code:           c.Code,
			Type:           c.Type,
			DiscountAmount: c.DiscountAmount,
		})
	}
	return dto
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	det, err := h.carts.Get(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toCartDTO(det))
}

type addItemRequest struct {
	ProductID          int64             `json:"product_id"`
	VariantID          *int64            `json:"variant_id"`
	Quantity           int               `json:"quantity"`
	SelectedAttributes map[string]string `json:"selected_attributes"`
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID <= 0 || req.Quantity < 1 {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "product_id and a positive quantity are required", nil)
		return
	}

	det, err := h.carts.AddItem(r.Context(), IdentityFrom(r.Context()), cart.AddItemParams{
		ProductID:          req.ProductID,
		VariantID:          req.VariantID,
		Quantity:           req.Quantity,
		SelectedAttributes: req.SelectedAttributes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toCartDTO(det))
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	var req updateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	det, err := h.carts.UpdateItemQuantity(r.Context(), IdentityFrom(r.Context()), itemID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toCartDTO(det))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}

	det, err := h.carts.RemoveItem(r.Context(), IdentityFrom(r.Context()), itemID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toCartDTO(det))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	det, err := h.carts.Clear(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toCartDTO(det))
}
