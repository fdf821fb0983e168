package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lapmart/lapmart-backend/internal/domain/checkout"
	"github.com/lapmart/lapmart-backend/internal/domain/order"
	"github.com/lapmart/lapmart-backend/internal/payment"
)

type orderItemDTO struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	VariantID    *int64          `json:"variant_id,omitempty"`
	Title        string          `json:"title"`
	SKU          string          `json:"sku"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitMRP      decimal.Decimal `json:"unit_mrp"`
	GSTPercent   int             `json:"gst_percent"`
	LineTotal    decimal.Decimal `json:"line_total"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	LineTax      decimal.Decimal `json:"line_tax"`
}

type orderDTO struct {
	ID                int64           `json:"id"`
	OrderNumber       string          `json:"order_number"`
	Status            string          `json:"status"`
	PaymentStatus     string          `json:"payment_status"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	ShippingAmount    decimal.Decimal `json:"shipping_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Currency          string          `json:"currency"`
	ShippingMethod    string          `json:"shipping_method,omitempty"`
	ShippingAddressID int64           `json:"shipping_address_id,omitempty"`
	BillingAddressID  int64           `json:"billing_address_id,omitempty"`
	Items             []orderItemDTO  `json:"items,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func toOrderDTO(o *order.Order) orderDTO {
	dto := orderDTO{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		Subtotal:          o.Subtotal,
		TaxAmount:         o.TaxAmount,
		DiscountAmount:    o.DiscountAmount,
		ShippingAmount:    o.ShippingAmount,
		TotalAmount:       o.TotalAmount,
		Currency:          o.Currency,
		ShippingMethod:    o.ShippingMethod,
		ShippingAddressID: o.ShippingAddressID,
		BillingAddressID:  o.BillingAddressID,
		CreatedAt:         o.CreatedAt,
	}
	for _, it := range o.Items {
		dto.Items = append(dto.Items, orderItemDTO{
			ID:           it.ID,
			ProductID:    it.ProductID,
			VariantID:    it.VariantID,
			Title:        it.Title,
			SKU:          it.SKU,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			UnitMRP:      it.UnitMRP,
			GSTPercent:   it.UnitGSTPercent,
			LineTotal:    it.LineTotal,
			LineDiscount: it.LineDiscount,
			LineTax:      it.LineTax,
		})
	}
	return dto
}

type intentDTO struct {
	ProviderOrderID string `json:"provider_order_id"`
	AmountPaise     int64  `json:"amount_paise"`
	Currency        string `json:"currency"`
}

func toIntentDTO(in *payment.Intent) *intentDTO {
	if in == nil {
		return nil
	}
	return &intentDTO{
		ProviderOrderID: in.ProviderOrderID,
		AmountPaise:     in.AmountPaise,
		Currency:        in.Currency,
	}
}

type addressRequest struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a addressRequest) toAddress() checkout.Address {
	return checkout.Address{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type checkoutInitRequest struct {
	ShippingAddressID int64           `json:"shipping_address_id"`
	ShippingAddress   *addressRequest `json:"shipping_address"`
	BillingAddressID  int64           `json:"billing_address_id"`
	BillingAddress    *addressRequest `json:"billing_address"`
	ShippingMethod    string          `json:"shipping_method"`
}

func (h *Handler) checkoutInit(w http.ResponseWriter, r *http.Request) {
	var req checkoutInitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p := checkout.InitParams{
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		ShippingMethod:    req.ShippingMethod,
	}
	if req.ShippingAddress != nil {
		p.ShippingAddress = req.ShippingAddress.toAddress()
	}
	if req.BillingAddress != nil {
		p.BillingAddress = req.BillingAddress.toAddress()
	}

	o, err := h.checkout.Init(r.Context(), IdentityFrom(r.Context()), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toOrderDTO(o))
}

type checkoutPayRequest struct {
	OrderID int64  `json:"order_id"`
	Method  string `json:"method"`
}

func (h *Handler) checkoutPay(w http.ResponseWriter, r *http.Request) {
	var req checkoutPayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID <= 0 || req.Method == "" {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "order_id and method are required", nil)
		return
	}

	res, err := h.checkout.Pay(r.Context(), IdentityFrom(r.Context()), req.OrderID, checkout.PaymentMethod(req.Method))
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := map[string]any{"order": toOrderDTO(res.Order)}
	if res.Intent != nil {
		body["intent"] = toIntentDTO(res.Intent)
	}
	writeData(w, http.StatusOK, body)
}

type checkoutConfirmRequest struct {
	OrderID         int64  `json:"order_id"`
	RazorpayOrderID string `json:"razorpay_order_id"`
	PaymentRef      string `json:"razorpay_payment_id"`
	Signature       string `json:"razorpay_signature"`
}

func (h *Handler) checkoutConfirm(w http.ResponseWriter, r *http.Request) {
	var req checkoutConfirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID <= 0 {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "order_id is required", nil)
		return
	}

	o, err := h.checkout.Confirm(r.Context(), IdentityFrom(r.Context()), checkout.ConfirmParams{
		OrderID:    req.OrderID,
		OrderRef:   req.RazorpayOrderID,
		PaymentRef: req.PaymentRef,
		Signature:  req.Signature,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toOrderDTO(o))
}

type checkoutCancelRequest struct {
	OrderID int64 `json:"order_id"`
}

func (h *Handler) checkoutCancel(w http.ResponseWriter, r *http.Request) {
	var req checkoutCancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID <= 0 {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "order_id is required", nil)
		return
	}

	o, err := h.checkout.Cancel(r.Context(), IdentityFrom(r.Context()), req.OrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toOrderDTO(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.checkout.ListOrders(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]orderDTO, 0, len(list))
	for i := range list {
		out = append(out, toOrderDTO(&list[i]))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		writeFail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}

	o, err := h.checkout.GetOrder(r.Context(), IdentityFrom(r.Context()), orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toOrderDTO(o))
}
