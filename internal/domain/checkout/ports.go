package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/pkg/inflight"
)

// IntentLock serializes captures of the same intent. Acquire returns
// ErrCaptureInProgress if the intent is already locked.
type IntentLock interface {
	Acquire(ctx context.Context, intentID string) (release func(context.Context), err error)
}

// JournalEntry is one saga transition or compensation outcome.
type JournalEntry struct {
	IntentID  string
	OrderID   string
	CaptureID string
	State     State
	Action    string
	Failed    bool
	Detail    string
}

// Journal durably records saga progress for later audit.
type Journal interface {
	Record(ctx context.Context, e JournalEntry) error
}

// Event types published by the saga.
const (
	EventOrderPaid       = "order.paid"
	EventPaymentRefunded = "payment.refunded"
	EventRefundFailed    = "payment.refund_failed"
)

// Event is a domain event emitted after the saga reaches a terminal state.
type Event struct {
	Type        string          `json:"type"`
	IntentID    string          `json:"intent_id"`
	CaptureID   string          `json:"capture_id,omitempty"`
	OrderID     string          `json:"order_id,omitempty"`
	OrderNumber string          `json:"order_number,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Publisher delivers domain events. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LocalIntentLock is an in-process IntentLock.
type LocalIntentLock struct {
	set inflight.Set
}

// NewLocalIntentLock returns an IntentLock that only excludes captures
// within this process.
func NewLocalIntentLock() *LocalIntentLock {
	return &LocalIntentLock{}
}

func (l *LocalIntentLock) Acquire(_ context.Context, intentID string) (func(context.Context), error) {
	if !l.set.TryAcquire(intentID) {
		return nil, ErrCaptureInProgress
	}
	return func(context.Context) { l.set.Release(intentID) }, nil
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, JournalEntry) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
