// Package cart guards cart mutations against duplicate submission.
package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/pkg/inflight"
)

// ClearKey is the guard key used for clearing the whole cart.
const ClearKey = "clear"

// ErrUpdateInFlight is returned when a mutation for the same product is
// already running.
var ErrUpdateInFlight = errors.New("cart update already in flight")

// Mutator performs cart mutations against the cart backend.
type Mutator interface {
	Add(ctx context.Context, productID string, quantity int) error
	Update(ctx context.Context, productID string, quantity int) error
	Remove(ctx context.Context, productID string) error
	Clear(ctx context.Context) error
}

// Guard records which products have a mutation in flight.
type Guard struct {
	set inflight.Set
}

// IsUpdating reports whether productID is being mutated. Pass ClearKey to
// ask about a clear-all.
func (g *Guard) IsUpdating(productID string) bool {
	return g.set.Has(productID)
}

// Run executes fn with productID marked as updating. The mark is removed on
// every exit path.
func (g *Guard) Run(ctx context.Context, productID string, fn func(ctx context.Context) error) error {
	err := g.set.Do(ctx, productID, fn)
	if errors.Is(err, inflight.ErrBusy) {
		return ErrUpdateInFlight
	}
	return err
}

// Client wraps a Mutator so that every mutation is guarded.
type Client struct {
	guard   *Guard
	backend Mutator
}

// NewClient returns a guarded cart client.
func NewClient(backend Mutator) *Client {
	return &Client{guard: &Guard{}, backend: backend}
}

// Guard exposes the client's guard, e.g. to disable UI actions.
func (c *Client) Guard() *Guard {
	return c.guard
}

func (c *Client) Add(ctx context.Context, productID string, quantity int) error {
	return c.guard.Run(ctx, productID, func(ctx context.Context) error {
		return c.backend.Add(ctx, productID, quantity)
	})
}

func (c *Client) Update(ctx context.Context, productID string, quantity int) error {
	return c.guard.Run(ctx, productID, func(ctx context.Context) error {
		return c.backend.Update(ctx, productID, quantity)
	})
}

func (c *Client) Remove(ctx context.Context, productID string) error {
	return c.guard.Run(ctx, productID, func(ctx context.Context) error {
		return c.backend.Remove(ctx, productID)
	})
}

func (c *Client) Clear(ctx context.Context) error {
	return c.guard.Run(ctx, ClearKey, c.backend.Clear)
}
