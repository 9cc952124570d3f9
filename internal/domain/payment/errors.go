// Package payment defines the payment processor contract: intents, captures
// and refunds.
package payment

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrCaptureNotCompleted is reported when a capture call returned a status
// other than COMPLETED. Pending or partial captures are not handled.
var ErrCaptureNotCompleted = errors.New("capture not completed")

// GatewayError is returned when the processor rejects a call or cannot be
// reached. Diagnostic holds the processor's raw response body, if any.
type GatewayError struct {
	Op         string
	StatusCode int
	Diagnostic string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := "payment gateway: " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// AmountMismatchError indicates the line items of an intent do not add up to
// its amount.
type AmountMismatchError struct {
	Amount    decimal.Decimal
	ItemTotal decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("line items total %s does not match amount %s", e.ItemTotal, e.Amount)
}

// CheckBreakdown verifies that the line items of req sum to its amount once
// rounded to the currency's minor unit.
func CheckBreakdown(req IntentRequest) error {
	itemTotal := req.ItemTotal().Round(2)
	if !itemTotal.Equal(req.Amount.Round(2)) {
		return &AmountMismatchError{Amount: req.Amount, ItemTotal: itemTotal}
	}
	return nil
}
