// Package memory provides an in-process order store for development and
// tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore keeps orders in memory. Returned orders are copies.
type OrderStore struct {
	mu       sync.RWMutex
	orders   map[string]*order.Order
	numbers  map[string]string
	catalog  map[string]order.ServiceOffer
	numberer interface{ Next() string }
	now      func() time.Time
}

// NewOrderStore returns an empty store offering the given add-on services.
func NewOrderStore(offers ...order.ServiceOffer) *OrderStore {
	catalog := make(map[string]order.ServiceOffer, len(offers))
	for _, o := range offers {
		catalog[o.ID] = o
	}
	return &OrderStore{
		orders:   make(map[string]*order.Order),
		numbers:  make(map[string]string),
		catalog:  catalog,
		numberer: order.NewNumberGenerator(),
		now:      time.Now,
	}
}

func (s *OrderStore) CreateOrder(_ context.Context, h order.Header) (*order.Order, error) {
	if err := h.Validate(); err != nil {
		return nil, order.WrapStore("create order", "", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	number := s.numberer.Next()
	if _, taken := s.numbers[number]; taken {
		return nil, &order.StoreError{Op: "create order", Err: errDuplicateNumber(number)}
	}

	now := s.now().UTC()
	o := &order.Order{
		ID:              uuid.New().String(),
		OrderNumber:     number,
		UserID:          h.UserID,
		Status:          h.Status,
		PaymentStatus:   h.PaymentStatus,
		PaymentMethod:   h.PaymentMethod,
		ShippingMethod:  h.ShippingMethod,
		Subtotal:        h.Subtotal,
		TaxAmount:       h.TaxAmount,
		ShippingAmount:  h.ShippingAmount,
		DiscountAmount:  h.DiscountAmount,
		TotalAmount:     h.TotalAmount,
		ShippingAddress: h.ShippingAddress,
		Notes:           h.Notes,
		PaymentDetails:  h.PaymentDetails,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if o.Status == "" {
		o.Status = order.StatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = order.PaymentPending
	}

	s.orders[o.ID] = clone(o)
	s.numbers[number] = o.ID
	return o, nil
}

func (s *OrderStore) CreateOrderItems(_ context.Context, orderID string, items []order.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return &order.StoreError{Op: "create order items", OrderID: orderID, Err: order.ErrNotFound}
	}
	for _, it := range items {
		if it.Quantity <= 0 || it.UnitPrice.IsNegative() {
			return &order.StoreError{Op: "create order items", OrderID: orderID, Err: errInvalidItem(it.ProductID)}
		}
	}
	for _, it := range items {
		it.OrderID = orderID
		o.Items = append(o.Items, it)
	}
	return nil
}

func (s *OrderStore) CreateOrderServices(_ context.Context, orderID string, services []order.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return &order.StoreError{Op: "create order services", OrderID: orderID, Err: order.ErrNotFound}
	}
	for _, svc := range services {
		svc.OrderID = orderID
		o.Services = append(o.Services, svc)
	}
	return nil
}

func (s *OrderStore) UpdatePaymentStatus(_ context.Context, orderID string, status order.PaymentStatus, details order.PaymentDetails) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, &order.StoreError{Op: "update payment status", OrderID: orderID, Err: order.ErrNotFound}
	}

	var current order.PaymentDetails
	if o.PaymentDetails != nil {
		current = *o.PaymentDetails
	}
	merged := current.Merge(details)

	o.PaymentStatus = status
	o.PaymentDetails = &merged
	o.UpdatedAt = s.now().UTC()
	return clone(o), nil
}

func (s *OrderStore) DeleteOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.orders[orderID]; ok {
		delete(s.numbers, o.OrderNumber)
		delete(s.orders, orderID)
	}
	return nil
}

func (s *OrderStore) GetOrder(_ context.Context, orderID string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return clone(o), nil
}

func (s *OrderStore) HasOrders(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *OrderStore) LookupServices(_ context.Context, ids []string) ([]order.ServiceOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]order.ServiceOffer, 0, len(ids))
	for _, id := range ids {
		if o, ok := s.catalog[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// Len returns the number of stored orders.
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func clone(o *order.Order) *order.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	c.Services = slices.Clone(o.Services)
	if o.ShippingAddress != nil {
		a := *o.ShippingAddress
		c.ShippingAddress = &a
	}
	if o.PaymentDetails != nil {
		d := o.PaymentDetails.Merge(order.PaymentDetails{})
		c.PaymentDetails = &d
	}
	return &c
}
