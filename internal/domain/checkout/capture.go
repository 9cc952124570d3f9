package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// CaptureRequest is the order payload submitted once the payer approved the
// intent. UserID is empty for guest checkout.
type CaptureRequest struct {
	IntentID           string
	UserID             string
	ShippingMethod     pricing.ShippingMethod
	ShippingAddress    *order.Address
	SelectedServiceIDs []string
	Items              []ItemInput
	Notes              string
}

// CaptureSummary describes the funds movement reported by the processor.
type CaptureSummary struct {
	IntentID   string
	CaptureID  string
	PayerName  string
	PayerEmail string
	CapturedAt time.Time
}

// CaptureResult is the outcome of a successful capture. State is
// StateSucceeded, or StateFinalizeFailed when the order exists and is paid
// but its payment metadata could not be written.
type CaptureResult struct {
	Order   *order.Order
	Capture CaptureSummary
	State   State
}

// captureRun carries the progress of one saga run.
type captureRun struct {
	req     CaptureRequest
	state   State
	capture *payment.CaptureResult
	orderID string
	totals  pricing.Totals
}

// Capture captures the approved intent and persists the resulting order.
//
// Steps run strictly in sequence and each external call is attempted once.
// A failure before funds are confirmed returns immediately. A failure while
// persisting the order refunds the capture, and deletes the order if it was
// already inserted, before returning the persistence error. A failure to
// write payment metadata after the order exists is logged and the order is
// returned as created.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Capture",
		trace.WithAttributes(attribute.String("intent.id", req.IntentID)),
	)
	defer span.End()

	run := &captureRun{req: req, state: StateIdle}
	res, err := s.capture(ctx, run)

	span.SetAttributes(attribute.String("saga.state", string(run.state)))
	s.captures.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(run.state))))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &Error{State: run.state, Err: err}
	}
	return res, nil
}

func (s *Service) capture(ctx context.Context, run *captureRun) (*CaptureResult, error) {
	req := run.req
	if req.IntentID == "" {
		return nil, &ValidationError{Field: "intentId", Reason: "required"}
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if err := validateShipping(req.ShippingMethod); err != nil {
		return nil, err
	}

	ctx = zctx.With(ctx, zap.String("intent_id", req.IntentID))

	release, err := s.lock.Acquire(ctx, req.IntentID)
	if err != nil {
		if errors.Is(err, ErrCaptureInProgress) {
			return nil, err
		}
		return nil, errors.Wrap(err, "acquire intent lock")
	}
	defer func() {
		releaseCtx, cancel := s.detached(ctx)
		defer cancel()
		release(releaseCtx)
	}()

	// Resolved before capture so that a lookup failure needs no refund.
	first, err := s.isFirstPurchase(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	run.totals = s.prices.Compute(pricingItems(req.Items), req.ShippingMethod, first)

	if err := s.captureFunds(ctx, run); err != nil {
		return nil, err
	}
	created, err := s.persist(ctx, run)
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, run, created), nil
}

func (s *Service) transition(ctx context.Context, run *captureRun, to State, detail string) {
	run.state = to
	journalCtx, cancel := s.detached(ctx)
	defer cancel()
	s.record(journalCtx, run.entry(detail))
}

func (run *captureRun) entry(detail string) JournalEntry {
	e := JournalEntry{
		IntentID: run.req.IntentID,
		OrderID:  run.orderID,
		State:    run.state,
		Detail:   detail,
	}
	if run.capture != nil {
		e.CaptureID = run.capture.CaptureID
	}
	return e
}

func (s *Service) captureFunds(ctx context.Context, run *captureRun) error {
	s.transition(ctx, run, StateCapturing, "")

	stepCtx, cancel := s.step(ctx)
	defer cancel()

	res, err := s.gateway.Capture(stepCtx, run.req.IntentID)
	if err != nil {
		err = asGatewayError("capture", err)
		s.transition(ctx, run, StateCaptureFailed, err.Error())
		return err
	}
	if !res.Completed() {
		err := &payment.GatewayError{
			Op:         "capture",
			Diagnostic: "status " + string(res.Status),
			Err:        payment.ErrCaptureNotCompleted,
		}
		s.transition(ctx, run, StateCaptureFailed, err.Error())
		return err
	}
	run.capture = res
	s.checkAmount(ctx, run)
	return nil
}

// checkAmount flags a capture whose amount differs from the order total
// about to be persisted. The order is still created: funds have moved and
// the difference needs manual reconciliation.
func (s *Service) checkAmount(ctx context.Context, run *captureRun) {
	c := run.capture
	if c.Amount.IsZero() || c.Amount.Equal(run.totals.Total.Round(2)) {
		return
	}
	zctx.From(ctx).Error("Captured amount differs from order total",
		zap.String("capture_id", c.CaptureID),
		zap.String("captured", c.Amount.StringFixed(2)),
		zap.String("total", run.totals.Total.StringFixed(2)),
	)
	e := run.entry(fmt.Sprintf("captured %s, order total %s", c.Amount.StringFixed(2), run.totals.Total.StringFixed(2)))
	e.Action = actionAmountCheck
	e.Failed = true

	journalCtx, cancel := s.detached(ctx)
	defer cancel()
	s.record(journalCtx, e)
}

func (s *Service) persist(ctx context.Context, run *captureRun) (*order.Order, error) {
	s.transition(ctx, run, StatePersisting, "")
	req := run.req

	// Funds are captured from here on: any failure, caller cancellation
	// included, must be compensated.
	if err := ctx.Err(); err != nil {
		return nil, s.persistFailed(ctx, run, order.WrapStore("create order", "", err))
	}

	header := order.Header{
		UserID:          req.UserID,
		Status:          order.StatusProcessing,
		PaymentStatus:   order.PaymentPaid,
		PaymentMethod:   s.cfg.PaymentMethod,
		ShippingMethod:  string(req.ShippingMethod),
		Subtotal:        run.totals.Subtotal,
		TaxAmount:       run.totals.Tax,
		ShippingAmount:  run.totals.Shipping,
		DiscountAmount:  run.totals.Discount,
		TotalAmount:     run.totals.Total,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		PaymentDetails: &order.PaymentDetails{Capture: &order.CaptureDetails{
			Provider:  order.ProviderPayPal,
			IntentID:  req.IntentID,
			CaptureID: run.capture.CaptureID,
		}},
	}

	stepCtx, cancel := s.step(ctx)
	created, err := s.store.CreateOrder(stepCtx, header)
	cancel()
	if err != nil {
		return nil, s.persistFailed(ctx, run, order.WrapStore("create order", "", err))
	}
	run.orderID = created.ID

	items := make([]order.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.NewItem(it.ProductID, it.Name, it.Quantity, it.Price)
		items[i].OrderID = created.ID
		items[i].ImageURL = it.ImageURL
	}

	stepCtx, cancel = s.step(ctx)
	err = s.store.CreateOrderItems(stepCtx, created.ID, items)
	cancel()
	if err != nil {
		return nil, s.persistFailed(ctx, run, order.WrapStore("create order items", created.ID, err))
	}
	created.Items = items
	created.Services = s.attachServices(ctx, created.ID, req.SelectedServiceIDs)

	return created, nil
}

// attachServices persists the selected add-ons. Failures are logged and
// leave the order without them.
func (s *Service) attachServices(ctx context.Context, orderID string, ids []string) []order.Service {
	if len(ids) == 0 {
		return nil
	}
	lg := zctx.From(ctx).With(zap.String("order_id", orderID), zap.Strings("service_ids", ids))

	stepCtx, cancel := s.step(ctx)
	offers, err := s.store.LookupServices(stepCtx, ids)
	cancel()
	if err != nil {
		lg.Warn("Lookup of order services failed, skipping", zap.Error(err))
		return nil
	}
	if len(offers) == 0 {
		return nil
	}

	services := make([]order.Service, len(offers))
	for i, o := range offers {
		services[i] = order.Service{OrderID: orderID, ServiceID: o.ID, Name: o.Name, Price: o.Price}
	}

	stepCtx, cancel = s.step(ctx)
	err = s.store.CreateOrderServices(stepCtx, orderID, services)
	cancel()
	if err != nil {
		lg.Warn("Persisting order services failed, skipping", zap.Error(err))
		return nil
	}
	return services
}

// persistFailed moves the run to StatePersistFailed, compensates, and
// returns cause unchanged. The transition is journaled by compensate once
// the refund has been issued.
func (s *Service) persistFailed(ctx context.Context, run *captureRun, cause error) error {
	run.state = StatePersistFailed
	zctx.From(ctx).Error("Order persistence failed after capture, compensating",
		zap.String("capture_id", run.capture.CaptureID),
		zap.String("order_id", run.orderID),
		zap.Error(cause),
	)
	s.compensate(ctx, run, cause)
	return cause
}

// compensate returns the captured funds and removes a partially created
// order. It runs detached from caller cancellation and never fails: every
// problem is logged and journaled as a CompensationError.
func (s *Service) compensate(ctx context.Context, run *captureRun, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()

	// Refund before any journal or store call.
	refundErr := s.gateway.Refund(ctx, run.capture.CaptureID)
	s.record(ctx, run.entry(cause.Error()))
	s.compensated(ctx, run, actionRefund, refundErr)

	if run.orderID != "" {
		s.compensated(ctx, run, actionDeleteOrder, s.store.DeleteOrder(ctx, run.orderID))
	}

	ev := s.event(run, EventPaymentRefunded)
	ev.Reason = cause.Error()
	if refundErr != nil {
		ev.Type = EventRefundFailed
	}
	s.publish(ctx, ev)
}

func (s *Service) compensated(ctx context.Context, run *captureRun, action string, err error) {
	result := "ok"
	entry := run.entry("")
	entry.Action = action
	if err != nil {
		result = "failed"
		cerr := &CompensationError{
			Action:    action,
			IntentID:  run.req.IntentID,
			OrderID:   run.orderID,
			CaptureID: run.capture.CaptureID,
			Err:       err,
		}
		entry.Failed = true
		entry.Detail = cerr.Error()
		zctx.From(ctx).Error("Compensation failed",
			zap.String("action", action),
			zap.String("capture_id", run.capture.CaptureID),
			zap.String("order_id", run.orderID),
			zap.Error(cerr),
		)
	}
	s.compensations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	))
	s.record(ctx, entry)
}

func (s *Service) finalize(ctx context.Context, run *captureRun, created *order.Order) *CaptureResult {
	s.transition(ctx, run, StateFinalizing, "")
	c := run.capture
	lg := zctx.From(ctx).With(zap.String("order_id", created.ID), zap.String("capture_id", c.CaptureID))

	capturedAt := c.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.now().UTC()
	}
	details := order.PaymentDetails{Capture: &order.CaptureDetails{
		Provider:   order.ProviderPayPal,
		IntentID:   run.req.IntentID,
		CaptureID:  c.CaptureID,
		PayerName:  c.PayerName,
		PayerEmail: c.PayerEmail,
		CapturedAt: capturedAt,
	}}

	// Finalizing runs detached: the order exists and is paid, so a caller
	// going away must not turn success into an error.
	stepCtx, cancel := s.step(context.WithoutCancel(ctx))
	updated, err := s.store.UpdatePaymentStatus(stepCtx, created.ID, order.PaymentPaid, details)
	cancel()

	result := created
	if err != nil {
		s.transition(ctx, run, StateFinalizeFailed, err.Error())
		lg.Warn("Payment status update failed, order kept", zap.Error(err))
	} else {
		updated.Items = created.Items
		updated.Services = created.Services
		result = updated
		s.transition(ctx, run, StateSucceeded, "")
	}

	lg.Info("Payment captured",
		zap.String("order_number", result.OrderNumber),
		zap.String("total", result.TotalAmount.String()),
		zap.String("state", string(run.state)),
	)

	ev := s.event(run, EventOrderPaid)
	ev.OrderNumber = result.OrderNumber
	publishCtx, cancel := s.detached(ctx)
	defer cancel()
	s.publish(publishCtx, ev)

	return &CaptureResult{
		Order: result,
		Capture: CaptureSummary{
			IntentID:   run.req.IntentID,
			CaptureID:  c.CaptureID,
			PayerName:  c.PayerName,
			PayerEmail: c.PayerEmail,
			CapturedAt: capturedAt,
		},
		State: run.state,
	}
}

func (s *Service) event(run *captureRun, typ string) Event {
	ev := Event{
		Type:       typ,
		IntentID:   run.req.IntentID,
		OrderID:    run.orderID,
		UserID:     run.req.UserID,
		Amount:     run.totals.Total,
		Currency:   s.cfg.Currency,
		OccurredAt: s.now().UTC(),
	}
	if run.capture != nil {
		ev.CaptureID = run.capture.CaptureID
	}
	return ev
}

// publish and record are best effort. Both run under ctx bounded by
// StepTimeout; callers detach ctx from the request where needed.
func (s *Service) publish(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	if err := s.events.Publish(ctx, ev); err != nil {
		zctx.From(ctx).Warn("Publish event failed",
			zap.String("event", ev.Type),
			zap.Error(err),
		)
	}
}

func (s *Service) record(ctx context.Context, e JournalEntry) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	if err := s.journal.Record(ctx, e); err != nil {
		zctx.From(ctx).Warn("Journal write failed",
			zap.String("state", string(e.State)),
			zap.String("action", e.Action),
			zap.Error(err),
		)
	}
}
