// Package pricing derives order totals from a list of line items and a
// shipping method. It performs no I/O.
package pricing

import "github.com/shopspring/decimal"

// ShippingMethod selects how the order reaches the customer.
type ShippingMethod string

const (
	// ShippingPickup means the customer collects the order; no fee applies.
	ShippingPickup ShippingMethod = "pickup"
	// ShippingDelivery means the order is shipped for a flat fee.
	ShippingDelivery ShippingMethod = "delivery"
)

// Item is a priced line item.
type Item struct {
	Price    decimal.Decimal
	Quantity int
}

// Totals is the computed breakdown of an order. Tax and Discount are always
// zero today but are carried so the total invariant can be checked as
// Total == Subtotal + Tax + Shipping - Discount.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Computer computes totals with a fixed delivery fee.
type Computer struct {
	fee decimal.Decimal
}

// NewComputer returns a Computer charging fee for non-pickup shipping.
func NewComputer(fee decimal.Decimal) *Computer {
	return &Computer{fee: fee}
}

// Fee returns the flat delivery fee.
func (c *Computer) Fee() decimal.Decimal {
	return c.fee
}

// Compute returns the totals for items. Shipping is free for pickup and for
// a customer's first purchase regardless of method.
func (c *Computer) Compute(items []Item, method ShippingMethod, isFirstPurchase bool) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	shipping := c.fee
	if method == ShippingPickup || isFirstPurchase {
		shipping = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      decimal.Zero,
		Discount: decimal.Zero,
		Total:    subtotal.Add(shipping),
	}
}

// Balanced reports whether t satisfies the total invariant.
func (t Totals) Balanced() bool {
	return t.Subtotal.Add(t.Tax).Add(t.Shipping).Sub(t.Discount).Equal(t.Total)
}
