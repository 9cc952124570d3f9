package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IntentStatus is the processor-side state of a payment intent.
type IntentStatus string

const (
	IntentCreated   IntentStatus = "CREATED"
	IntentApproved  IntentStatus = "APPROVED"
	IntentCompleted IntentStatus = "COMPLETED"
	IntentVoided    IntentStatus = "VOIDED"
)

// LineItem is a single entry of an intent's amount breakdown.
type LineItem struct {
	Name       string
	UnitAmount decimal.Decimal
	Quantity   int
}

// IntentRequest describes the intent to open with the processor.
type IntentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	LineItems   []LineItem
	Description string
}

// ItemTotal returns the sum of unit amount times quantity over all items.
// Unit amounts are rounded to cents first, as they are sent on the wire.
func (r IntentRequest) ItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range r.LineItems {
		total = total.Add(li.UnitAmount.Round(2).Mul(decimal.NewFromInt(int64(li.Quantity))))
	}
	return total
}

// CaptureResult is what the processor reports after a capture call.
type CaptureResult struct {
	IntentID   string
	Status     IntentStatus
	CaptureID  string
	PayerName  string
	PayerEmail string
	CapturedAt time.Time
	// Amount is the captured amount. Zero when the processor omitted it.
	Amount   decimal.Decimal
	Currency string
}

// Completed reports whether funds were actually moved.
func (r *CaptureResult) Completed() bool {
	return r.Status == IntentCompleted
}

// Gateway talks to the external payment processor. Implementations keep no
// state between calls.
type Gateway interface {
	OpenIntent(ctx context.Context, req IntentRequest) (string, error)
	Capture(ctx context.Context, intentID string) (*CaptureResult, error)
	Refund(ctx context.Context, captureID string) error
}
