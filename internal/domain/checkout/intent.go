package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// shippingLineName names the synthetic line item carrying the shipping fee.
const shippingLineName = "Shipping"

// OpenIntentRequest is the input for starting a checkout.
type OpenIntentRequest struct {
	UserID         string
	ShippingMethod pricing.ShippingMethod
	Items          []ItemInput
}

// OpenIntentResult holds the processor intent id and the totals it was
// opened for.
type OpenIntentResult struct {
	IntentID string
	Currency string
	Totals   pricing.Totals
}

// OpenIntent prices the cart and opens a payment intent for the total. The
// intent's line items always sum to its amount: a non-zero shipping fee is
// sent as its own line.
func (s *Service) OpenIntent(ctx context.Context, req OpenIntentRequest) (*OpenIntentResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.OpenIntent",
		trace.WithAttributes(attribute.Int("items", len(req.Items))),
	)
	defer span.End()

	res, err := s.openIntent(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("intent.id", res.IntentID))
	return res, nil
}

func (s *Service) openIntent(ctx context.Context, req OpenIntentRequest) (*OpenIntentResult, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if err := validateShipping(req.ShippingMethod); err != nil {
		return nil, err
	}

	first, err := s.isFirstPurchase(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	totals := s.prices.Compute(pricingItems(req.Items), req.ShippingMethod, first)

	lines := make([]payment.LineItem, 0, len(req.Items)+1)
	for _, it := range req.Items {
		lines = append(lines, payment.LineItem{
			Name:       it.Name,
			UnitAmount: it.Price,
			Quantity:   it.Quantity,
		})
	}
	if totals.Shipping.IsPositive() {
		lines = append(lines, payment.LineItem{
			Name:       shippingLineName,
			UnitAmount: totals.Shipping,
			Quantity:   1,
		})
	}

	intentReq := payment.IntentRequest{
		Amount:      totals.Total,
		Currency:    s.cfg.Currency,
		LineItems:   lines,
		Description: s.cfg.Description,
	}
	if err := payment.CheckBreakdown(intentReq); err != nil {
		return nil, &payment.GatewayError{Op: "open intent", Err: err}
	}

	stepCtx, cancel := s.step(ctx)
	defer cancel()

	id, err := s.gateway.OpenIntent(stepCtx, intentReq)
	if err != nil {
		return nil, asGatewayError("open intent", err)
	}

	return &OpenIntentResult{
		IntentID: id,
		Currency: s.cfg.Currency,
		Totals:   totals,
	}, nil
}

// asGatewayError classifies err as a gateway failure of op.
func asGatewayError(op string, err error) error {
	var ge *payment.GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return &payment.GatewayError{Op: op, Err: err}
}
