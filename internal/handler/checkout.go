package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

type itemDTO struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"imageUrl,omitempty"`
}

type addressDTO struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type openIntentRequest struct {
	ShippingMethod string    `json:"shippingMethod"`
	Items          []itemDTO `json:"items"`
}

type openIntentResponse struct {
	IntentID string `json:"intentId"`
	Currency string `json:"currency"`
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
}

type captureRequest struct {
	ShippingMethod     string      `json:"shippingMethod"`
	ShippingAddress    *addressDTO `json:"shippingAddress,omitempty"`
	SelectedServiceIDs []string    `json:"selectedServiceIds"`
	Items              []itemDTO   `json:"items"`
	Notes              string      `json:"notes,omitempty"`
}

type captureResponse struct {
	OrderID       string `json:"orderId"`
	OrderNumber   string `json:"orderNumber"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
}

// OpenIntent handles POST /api/checkout/intents.
func (h *Handler) OpenIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req openIntentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	res, err := h.checkout.OpenIntent(ctx, checkout.OpenIntentRequest{
		UserID:         r.Header.Get(HeaderUserID),
		ShippingMethod: pricing.ShippingMethod(req.ShippingMethod),
		Items:          toItems(req.Items),
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, openIntentResponse{
		IntentID: res.IntentID,
		Currency: res.Currency,
		Subtotal: res.Totals.Subtotal.StringFixed(2),
		Shipping: res.Totals.Shipping.StringFixed(2),
		Total:    res.Totals.Total.StringFixed(2),
	})
}

// Capture handles POST /api/checkout/intents/{intentId}/capture.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req captureRequest
	if err := decode(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	res, err := h.checkout.Capture(ctx, checkout.CaptureRequest{
		IntentID:           chi.URLParam(r, "intentId"),
		UserID:             r.Header.Get(HeaderUserID),
		ShippingMethod:     pricing.ShippingMethod(req.ShippingMethod),
		ShippingAddress:    toAddress(req.ShippingAddress),
		SelectedServiceIDs: req.SelectedServiceIDs,
		Items:              toItems(req.Items),
		Notes:              req.Notes,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, captureResponse{
		OrderID:       res.Order.ID,
		OrderNumber:   res.Order.OrderNumber,
		Status:        string(res.Order.Status),
		PaymentStatus: string(res.Order.PaymentStatus),
	})
}

func toItems(in []itemDTO) []checkout.ItemInput {
	out := make([]checkout.ItemInput, len(in))
	for i, it := range in {
		out[i] = checkout.ItemInput{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
			ImageURL:  it.ImageURL,
		}
	}
	return out
}

func toAddress(a *addressDTO) *order.Address {
	if a == nil {
		return nil
	}
	return &order.Address{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}
