package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

// State is a step of the capture saga.
type State string

const (
	StateIdle           State = "idle"
	StateCapturing      State = "capturing"
	StatePersisting     State = "persisting"
	StateFinalizing     State = "finalizing"
	StateSucceeded      State = "succeeded"
	StateCaptureFailed  State = "capture_failed"
	StatePersistFailed  State = "persist_failed"
	StateFinalizeFailed State = "finalize_failed"
)

// ErrCaptureInProgress is returned when another capture of the same intent
// is running.
var ErrCaptureInProgress = errors.New("capture already in progress for this intent")

// ValidationError reports bad input. It is detected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CompensationError describes a failed compensating action. It is logged
// and journaled, never returned to the caller.
type CompensationError struct {
	Action    string
	IntentID  string
	OrderID   string
	CaptureID string
	Err       error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation %s failed (intent %s): %v", e.Action, e.IntentID, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// Error is returned by Service.Capture. State is where the saga stopped and
// Err is the single root cause: a *ValidationError, *payment.GatewayError or
// *order.StoreError, or ErrCaptureInProgress.
type Error struct {
	State State
	Err   error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Journal actions.
const (
	actionRefund      = "refund"
	actionDeleteOrder = "delete_order"
	// actionAmountCheck journals a capture whose amount differs from the
	// order total.
	actionAmountCheck = "amount_check"
)
