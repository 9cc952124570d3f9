// Package checkout implements the payment capture saga: capture funds with
// the payment processor, persist the order, and compensate when persistence
// fails after money has moved.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// Config holds non-dependency settings of the Service.
type Config struct {
	// Currency is the ISO 4217 code of all amounts.
	Currency string
	// PaymentMethod is recorded on created orders.
	PaymentMethod string
	// Description is sent with every payment intent.
	Description string
	// StepTimeout bounds each gateway or store call.
	StepTimeout time.Duration
	// CompensationTimeout bounds the whole compensation phase. Compensation
	// ignores caller cancellation.
	CompensationTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.PaymentMethod == "" {
		c.PaymentMethod = string(order.ProviderPayPal)
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	if c.CompensationTimeout <= 0 {
		c.CompensationTimeout = 15 * time.Second
	}
}

// ItemInput is a cart line as submitted by the storefront.
type ItemInput struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
	ImageURL  string
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithIntentLock replaces the default in-process intent lock.
func WithIntentLock(l IntentLock) Option {
	return func(s *Service) { s.lock = l }
}

// WithJournal records saga transitions to j.
func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

// WithPublisher emits domain events through p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service opens payment intents and runs the capture saga. Captures of
// different intents may run concurrently; the Service holds no per-capture
// state.
type Service struct {
	gateway payment.Gateway
	store   order.Store
	prices  *pricing.Computer
	cfg     Config

	lock    IntentLock
	journal Journal
	events  Publisher
	now     func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	captures       metric.Int64Counter
	compensations  metric.Int64Counter
}

// NewService creates a Service with the required collaborators.
func NewService(
	gateway payment.Gateway,
	store order.Store,
	prices *pricing.Computer,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	cfg.setDefaults()
	s := &Service{
		gateway:        gateway,
		store:          store,
		prices:         prices,
		cfg:            cfg,
		lock:           NewLocalIntentLock(),
		journal:        nopJournal{},
		events:         nopPublisher{},
		now:            time.Now,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer("github.com/xenking/kart-checkout/internal/domain/checkout")
	meter := s.meterProvider.Meter("github.com/xenking/kart-checkout/internal/domain/checkout")

	var err error
	if s.captures, err = meter.Int64Counter("checkout.captures",
		metric.WithDescription("Capture saga runs by final state"),
	); err != nil {
		return nil, errors.Wrap(err, "captures counter")
	}
	if s.compensations, err = meter.Int64Counter("checkout.compensations",
		metric.WithDescription("Compensating actions by action and result"),
	); err != nil {
		return nil, errors.Wrap(err, "compensations counter")
	}

	return s, nil
}

func (s *Service) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StepTimeout)
}

// detached returns a context that survives caller cancellation but is still
// bounded by StepTimeout.
func (s *Service) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StepTimeout)
}

// isFirstPurchase reports whether userID has never ordered before. Anonymous
// buyers are never first-time purchasers.
func (s *Service) isFirstPurchase(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	ctx, cancel := s.step(ctx)
	defer cancel()

	has, err := s.store.HasOrders(ctx, userID)
	if err != nil {
		return false, order.WrapStore("has orders", "", err)
	}
	return !has, nil
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	for i, it := range items {
		switch {
		case it.ProductID == "":
			return &ValidationError{Field: itemField(i, "productId"), Reason: "required"}
		case it.Name == "":
			return &ValidationError{Field: itemField(i, "name"), Reason: "required"}
		case it.Quantity <= 0:
			return &ValidationError{Field: itemField(i, "quantity"), Reason: "must be greater than 0"}
		case it.Price.IsNegative():
			return &ValidationError{Field: itemField(i, "price"), Reason: "must not be negative"}
		case !it.Price.Equal(it.Price.Round(2)):
			return &ValidationError{Field: itemField(i, "price"), Reason: "must have at most 2 decimal places"}
		}
	}
	return nil
}

func validateShipping(m pricing.ShippingMethod) error {
	switch m {
	case pricing.ShippingPickup, pricing.ShippingDelivery:
		return nil
	default:
		return &ValidationError{Field: "shippingMethod", Reason: "must be pickup or delivery"}
	}
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}

func pricingItems(items []ItemInput) []pricing.Item {
	out := make([]pricing.Item, len(items))
	for i, it := range items {
		out[i] = pricing.Item{Price: it.Price, Quantity: it.Quantity}
	}
	return out
}
