package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus is the payment state of an order as seen by the store.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

// Address is a snapshot of the shipping address taken at order time.
type Address struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Order is the store's order aggregate: header, owned items and add-on
// services.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	ShippingMethod  string
	Subtotal        decimal.Decimal
	TaxAmount       decimal.Decimal
	ShippingAmount  decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	ShippingAddress *Address
	Notes           string
	PaymentDetails  *PaymentDetails
	Items           []Item
	Services        []Service
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is an order line. TotalPrice is always Quantity * UnitPrice.
type Item struct {
	OrderID    string
	ProductID  string
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	ImageURL   string
}

// NewItem builds an Item and derives its total price.
func NewItem(productID, name string, quantity int, unitPrice decimal.Decimal) Item {
	return Item{
		ProductID:  productID,
		Name:       name,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		TotalPrice: unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// Service is an optional add-on attached to an order.
type Service struct {
	OrderID   string
	ServiceID string
	Name      string
	Price     decimal.Decimal
}

// ServiceOffer is a purchasable add-on from the service catalog.
type ServiceOffer struct {
	ID    string
	Name  string
	Price decimal.Decimal
}

// Header holds everything needed to insert an order row. The store assigns
// ID and OrderNumber.
type Header struct {
	UserID          string
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	ShippingMethod  string
	Subtotal        decimal.Decimal
	TaxAmount       decimal.Decimal
	ShippingAmount  decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	ShippingAddress *Address
	Notes           string
	PaymentDetails  *PaymentDetails
}

// Validate checks the total invariant
// TotalAmount == Subtotal + TaxAmount + ShippingAmount - DiscountAmount.
func (h Header) Validate() error {
	want := h.Subtotal.Add(h.TaxAmount).Add(h.ShippingAmount).Sub(h.DiscountAmount)
	if !want.Equal(h.TotalAmount) {
		return &UnbalancedTotalsError{Total: h.TotalAmount, Computed: want}
	}
	return nil
}

// Store persists order aggregates. Creation of an aggregate is split into
// separate calls with no transaction spanning them; callers compensate.
type Store interface {
	CreateOrder(ctx context.Context, h Header) (*Order, error)
	CreateOrderItems(ctx context.Context, orderID string, items []Item) error
	CreateOrderServices(ctx context.Context, orderID string, services []Service) error
	// UpdatePaymentStatus sets the payment status and merges details into the
	// stored payment details.
	UpdatePaymentStatus(ctx context.Context, orderID string, status PaymentStatus, details PaymentDetails) (*Order, error)
	// DeleteOrder removes an order and its children. Used for compensation only.
	DeleteOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	HasOrders(ctx context.Context, userID string) (bool, error)
	LookupServices(ctx context.Context, ids []string) ([]ServiceOffer, error)
}
