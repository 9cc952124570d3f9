package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const orderColumns = `id::text, order_number, COALESCE(user_id, ''), status, payment_status,
	payment_method, shipping_method, subtotal, tax_amount, shipping_amount,
	discount_amount, total_amount, shipping_address, notes, payment_details,
	created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (id, order_number, user_id, status, payment_status,
		payment_method, shipping_method, subtotal, tax_amount, shipping_amount,
		discount_amount, total_amount, shipping_address, notes, payment_details)
	VALUES ($1::uuid, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15::jsonb)
	RETURNING created_at, updated_at`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, name, quantity, unit_price, total_price, image_url)
	VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)`

	createOrderServiceSQL = `INSERT INTO order_services (order_id, service_id, name, price)
	VALUES ($1::uuid, $2, $3, $4)`

	updatePaymentStatusSQL = `UPDATE orders
	SET payment_status = $2,
		payment_details = COALESCE(payment_details, '{}'::jsonb) || $3::jsonb,
		updated_at = now()
	WHERE id = $1::uuid
	RETURNING ` + orderColumns

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1::uuid`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1::uuid`

	listOrderItemsSQL = `SELECT order_id::text, product_id, name, quantity, unit_price, total_price, image_url
	FROM order_items WHERE order_id = $1::uuid ORDER BY id`

	listOrderServicesSQL = `SELECT order_id::text, service_id, name, price
	FROM order_services WHERE order_id = $1::uuid ORDER BY service_id`

	hasOrdersSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE user_id = $1)`

	lookupServicesSQL = `SELECT id, name, price FROM service_catalog
	WHERE id = ANY($1) AND active ORDER BY id`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL. Each method is a
// single statement or batch; no transaction spans methods.
type OrderStore struct {
	pool     *pgxpool.Pool
	numberer interface{ Next() string }
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool, numberer: order.NewNumberGenerator()}
}

// CreateOrder inserts the order header with a fresh id and order number.
func (s *OrderStore) CreateOrder(ctx context.Context, h order.Header) (*order.Order, error) {
	const op = "create order"
	if err := h.Validate(); err != nil {
		return nil, &order.StoreError{Op: op, Err: err}
	}

	o := &order.Order{
		ID:              uuid.New().String(),
		OrderNumber:     s.numberer.Next(),
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
	}
	if o.Status == "" {
		o.Status = order.StatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = order.PaymentPending
	}

	addr, err := jsonOrNil(o.ShippingAddress)
	if err != nil {
		return nil, &order.StoreError{Op: op, Err: fmt.Errorf("marshaling shipping address: %w", err)}
	}
	details, err := jsonOrNil(o.PaymentDetails)
	if err != nil {
		return nil, &order.StoreError{Op: op, Err: fmt.Errorf("marshaling payment details: %w", err)}
	}

	err = s.pool.QueryRow(ctx, createOrderSQL,
		o.ID, o.OrderNumber, o.UserID, string(o.Status), string(o.PaymentStatus),
		o.PaymentMethod, o.ShippingMethod, o.Subtotal, o.TaxAmount, o.ShippingAmount,
		o.DiscountAmount, o.TotalAmount, addr, o.Notes, details,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, &order.StoreError{Op: op, Err: fmt.Errorf("inserting order %q: %w", o.OrderNumber, err)}
	}
	return o, nil
}

// CreateOrderItems inserts all items in one batch. The batch runs in an
// implicit transaction, so either every item is stored or none is.
func (s *OrderStore) CreateOrderItems(ctx context.Context, orderID string, items []order.Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(createOrderItemSQL,
			orderID, it.ProductID, it.Name, it.Quantity, it.UnitPrice, it.TotalPrice, it.ImageURL,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return &order.StoreError{Op: "create order items", OrderID: orderID, Err: err}
	}
	return nil
}

// CreateOrderServices inserts the add-on services in one batch.
func (s *OrderStore) CreateOrderServices(ctx context.Context, orderID string, services []order.Service) error {
	if len(services) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, svc := range services {
		batch.Queue(createOrderServiceSQL, orderID, svc.ServiceID, svc.Name, svc.Price)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return &order.StoreError{Op: "create order services", OrderID: orderID, Err: err}
	}
	return nil
}

// UpdatePaymentStatus sets the payment status and merges details into the
// stored JSON document key by key.
func (s *OrderStore) UpdatePaymentStatus(ctx context.Context, orderID string, status order.PaymentStatus, details order.PaymentDetails) (*order.Order, error) {
	const op = "update payment status"
	patch, err := json.Marshal(details)
	if err != nil {
		return nil, &order.StoreError{Op: op, OrderID: orderID, Err: fmt.Errorf("marshaling payment details: %w", err)}
	}

	rows, err := s.pool.Query(ctx, updatePaymentStatusSQL, orderID, string(status), string(patch))
	if err != nil {
		return nil, &order.StoreError{Op: op, OrderID: orderID, Err: err}
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = order.ErrNotFound
		}
		return nil, &order.StoreError{Op: op, OrderID: orderID, Err: err}
	}
	return o, nil
}

// DeleteOrder removes the order; items and services cascade.
func (s *OrderStore) DeleteOrder(ctx context.Context, orderID string) error {
	if _, err := s.pool.Exec(ctx, deleteOrderSQL, orderID); err != nil {
		return &order.StoreError{Op: "delete order", OrderID: orderID, Err: err}
	}
	return nil
}

// GetOrder loads an order with its items and services.
func (s *OrderStore) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	const op = "get order"
	rows, err := s.pool.Query(ctx, getOrderSQL, orderID)
	if err != nil {
		return nil, &order.StoreError{Op: op, OrderID: orderID, Err: err}
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = order.ErrNotFound
		}
		return nil, &order.StoreError{Op: op, OrderID: orderID, Err: err}
	}

	rows, err = s.pool.Query(ctx, listOrderItemsSQL, orderID)
	if err != nil {
		return nil, &order.StoreError{Op: op, OrderID: orderID, Err: fmt.Errorf("listing items: %w", err)}
	}
	if o.Items, err = pgx.CollectRows(rows, scanItem); err != nil {
		return nil, &order.StoreError{Op: op, OrderID: orderID, Err: fmt.Errorf("scanning items: %w", err)}
	}

	rows, err = s.pool.Query(ctx, listOrderServicesSQL, orderID)
	if err != nil {
		return nil, &order.StoreError{Op: op, OrderID: orderID, Err: fmt.Errorf("listing services: %w", err)}
	}
	if o.Services, err = pgx.CollectRows(rows, scanService); err != nil {
		return nil, &order.StoreError{Op: op, OrderID: orderID, Err: fmt.Errorf("scanning services: %w", err)}
	}
	return o, nil
}

// HasOrders reports whether userID has placed any order.
func (s *OrderStore) HasOrders(ctx context.Context, userID string) (bool, error) {
	var has bool
	if err := s.pool.QueryRow(ctx, hasOrdersSQL, userID).Scan(&has); err != nil {
		return false, &order.StoreError{Op: "has orders", Err: err}
	}
	return has, nil
}

// LookupServices returns the active catalog entries among ids. Unknown or
// inactive ids are skipped.
func (s *OrderStore) LookupServices(ctx context.Context, ids []string) ([]order.ServiceOffer, error) {
	rows, err := s.pool.Query(ctx, lookupServicesSQL, ids)
	if err != nil {
		return nil, &order.StoreError{Op: "lookup services", Err: err}
	}
	offers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.ServiceOffer, error) {
		var o order.ServiceOffer
		err := row.Scan(&o.ID, &o.Name, &o.Price)
		return o, err
	})
	if err != nil {
		return nil, &order.StoreError{Op: "lookup services", Err: err}
	}
	return offers, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o             order.Order
		status        string
		paymentStatus string
		addr          []byte
		details       []byte
		createdAt     time.Time
		updatedAt     time.Time
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &status, &paymentStatus,
		&o.PaymentMethod, &o.ShippingMethod, &o.Subtotal, &o.TaxAmount, &o.ShippingAmount,
		&o.DiscountAmount, &o.TotalAmount, &addr, &o.Notes, &details,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt

	if len(addr) > 0 {
		o.ShippingAddress = &order.Address{}
		if err := json.Unmarshal(addr, o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshaling shipping address: %w", err)
		}
	}
	if len(details) > 0 {
		o.PaymentDetails = &order.PaymentDetails{}
		if err := json.Unmarshal(details, o.PaymentDetails); err != nil {
			return nil, fmt.Errorf("unmarshaling payment details: %w", err)
		}
	}
	return &o, nil
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it       order.Item
		quantity int32
	)
	err := row.Scan(&it.OrderID, &it.ProductID, &it.Name, &quantity, &it.UnitPrice, &it.TotalPrice, &it.ImageURL)
	it.Quantity = int(quantity)
	return it, err
}

func scanService(row pgx.CollectableRow) (order.Service, error) {
	var svc order.Service
	err := row.Scan(&svc.OrderID, &svc.ServiceID, &svc.Name, &svc.Price)
	return svc, err
}

// jsonOrNil marshals v, returning nil for a nil pointer so the column is
// stored as NULL.
func jsonOrNil[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
