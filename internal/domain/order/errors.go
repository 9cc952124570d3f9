// Package order defines the order aggregate and its persistence contract.
package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// StoreError wraps any failure of the order store.
type StoreError struct {
	Op      string
	OrderID string
	Err     error
}

func (e *StoreError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("order store: %s %s: %v", e.Op, e.OrderID, e.Err)
	}
	return fmt.Sprintf("order store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStore returns err as a *StoreError, reusing err if it already is one.
func WrapStore(op, orderID string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, OrderID: orderID, Err: err}
}

// UnbalancedTotalsError indicates a header whose total does not match its
// components.
type UnbalancedTotalsError struct {
	Total    decimal.Decimal
	Computed decimal.Decimal
}

func (e *UnbalancedTotalsError) Error() string {
	return fmt.Sprintf("total %s does not match computed %s", e.Total, e.Computed)
}
