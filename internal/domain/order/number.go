package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// NumberGenerator produces human-readable order numbers of the form
// ORD-<unix_ms>-<3 digits>. Numbers are practically but not provably unique;
// the store's unique index is the final arbiter.
type NumberGenerator struct {
	now  func() time.Time
	rand func(n int) int
}

// NewNumberGenerator returns a generator using the wall clock and a
// non-cryptographic random source.
func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{now: time.Now, rand: rand.IntN}
}

// Next returns a new order number.
func (g *NumberGenerator) Next() string {
	return FormatNumber(g.now(), g.rand(1000))
}

// FormatNumber formats an order number from a timestamp and a suffix in
// [0, 999].
func FormatNumber(t time.Time, suffix int) string {
	return fmt.Sprintf("ORD-%d-%03d", t.UnixMilli(), suffix%1000)
}
