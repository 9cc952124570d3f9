package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/storage/memory"
)

// --- Mock implementations ---

type fakeGateway struct {
	mu sync.Mutex

	intentID  string
	openErr   error
	opened    []payment.IntentRequest
	capture   *payment.CaptureResult
	captureFn func(ctx context.Context)
	capErr    error
	captures  int
	refundErr error
	refunds   []string
	refundCtx []error
}

func (g *fakeGateway) OpenIntent(_ context.Context, req payment.IntentRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opened = append(g.opened, req)
	if g.openErr != nil {
		return "", g.openErr
	}
	return g.intentID, nil
}

func (g *fakeGateway) Capture(ctx context.Context, intentID string) (*payment.CaptureResult, error) {
	g.mu.Lock()
	g.captures++
	fn := g.captureFn
	g.mu.Unlock()
	if fn != nil {
		fn(ctx)
	}
	if g.capErr != nil {
		return nil, g.capErr
	}
	res := *g.capture
	res.IntentID = intentID
	return &res, nil
}

func (g *fakeGateway) Refund(ctx context.Context, captureID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, captureID)
	g.refundCtx = append(g.refundCtx, ctx.Err())
	return g.refundErr
}

func completedGateway() *fakeGateway {
	return &fakeGateway{
		intentID: "INTENT-1",
		capture: &payment.CaptureResult{
			Status:     payment.IntentCompleted,
			CaptureID:  "CAP-1",
			PayerName:  "Ada Lovelace",
			PayerEmail: "ada@example.com",
		},
	}
}

// failingStore decorates the in-memory store with injectable failures.
type failingStore struct {
	*memory.OrderStore

	createErr   error
	itemsErr    error
	servicesErr error
	updateErr   error
	deleteErr   error
	hasErr      error
	lastOrderID string
	deleted     []string
}

func newFailingStore(offers ...order.ServiceOffer) *failingStore {
	return &failingStore{OrderStore: memory.NewOrderStore(offers...)}
}

func (s *failingStore) CreateOrder(ctx context.Context, h order.Header) (*order.Order, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	o, err := s.OrderStore.CreateOrder(ctx, h)
	if o != nil {
		s.lastOrderID = o.ID
	}
	return o, err
}

func (s *failingStore) CreateOrderItems(ctx context.Context, orderID string, items []order.Item) error {
	if s.itemsErr != nil {
		return s.itemsErr
	}
	return s.OrderStore.CreateOrderItems(ctx, orderID, items)
}

func (s *failingStore) CreateOrderServices(ctx context.Context, orderID string, services []order.Service) error {
	if s.servicesErr != nil {
		return s.servicesErr
	}
	return s.OrderStore.CreateOrderServices(ctx, orderID, services)
}

func (s *failingStore) UpdatePaymentStatus(ctx context.Context, orderID string, st order.PaymentStatus, d order.PaymentDetails) (*order.Order, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.OrderStore.UpdatePaymentStatus(ctx, orderID, st, d)
}

func (s *failingStore) DeleteOrder(ctx context.Context, orderID string) error {
	s.deleted = append(s.deleted, orderID)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.OrderStore.DeleteOrder(ctx, orderID)
}

func (s *failingStore) HasOrders(ctx context.Context, userID string) (bool, error) {
	if s.hasErr != nil {
		return false, s.hasErr
	}
	return s.OrderStore.HasOrders(ctx, userID)
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func (j *recordingJournal) Record(_ context.Context, e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *recordingJournal) states() []State {
	var out []State
	for _, e := range j.entries {
		if e.Action == "" {
			out = append(out, e.State)
		}
	}
	return out
}

func (j *recordingJournal) actions() []JournalEntry {
	var out []JournalEntry
	for _, e := range j.entries {
		if e.Action != "" {
			out = append(out, e)
		}
	}
	return out
}

// blockingJournal hangs on entries of the given state until ctx is done.
type blockingJournal struct {
	recordingJournal

	state State
	// onBlock runs when a matching entry starts blocking.
	onBlock  func()
	deadline []bool
}

func (j *blockingJournal) Record(ctx context.Context, e JournalEntry) error {
	if e.State == j.state && e.Action == "" {
		_, ok := ctx.Deadline()
		j.mu.Lock()
		j.deadline = append(j.deadline, ok)
		j.mu.Unlock()
		if j.onBlock != nil {
			j.onBlock()
		}
		<-ctx.Done()
		return ctx.Err()
	}
	return j.recordingJournal.Record(ctx, e)
}

// blockingPublisher hangs until ctx is done.
type blockingPublisher struct {
	calls atomic.Int32
}

func (p *blockingPublisher) Publish(ctx context.Context, _ Event) error {
	p.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type lockFunc func(ctx context.Context, intentID string) (func(context.Context), error)

func (f lockFunc) Acquire(ctx context.Context, intentID string) (func(context.Context), error) {
	return f(ctx, intentID)
}

// --- Helpers ---

var errBoom = errors.New("boom")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T, gw payment.Gateway, store order.Store, opts ...Option) *Service {
	t.Helper()
	return newTestServiceWithConfig(t, gw, store, Config{}, opts...)
}

func newTestServiceWithConfig(t *testing.T, gw payment.Gateway, store order.Store, cfg Config, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(gw, store, pricing.NewComputer(dec("1.50")), cfg, opts...)
	require.NoError(t, err)
	return svc
}

// shortTimeouts keeps hung collaborators from stalling tests.
func shortTimeouts() Config {
	return Config{StepTimeout: 50 * time.Millisecond, CompensationTimeout: 100 * time.Millisecond}
}

func captureRequest() CaptureRequest {
	return CaptureRequest{
		IntentID:       "INTENT-1",
		UserID:         "user-1",
		ShippingMethod: pricing.ShippingDelivery,
		ShippingAddress: &order.Address{
			FullName:   "Ada Lovelace",
			Line1:      "12 St James's Square",
			City:       "London",
			PostalCode: "SW1Y 4JH",
			Country:    "GB",
		},
		Items: []ItemInput{
			{ProductID: "p1", Name: "Widget", Price: dec("10.00"), Quantity: 2},
			{ProductID: "p2", Name: "Gadget", Price: dec("5.00"), Quantity: 1},
		},
	}
}
