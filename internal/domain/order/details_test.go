package order

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentDetails_Merge(t *testing.T) {
	capturedAt := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	base := PaymentDetails{
		Capture: &CaptureDetails{Provider: ProviderPayPal, IntentID: "INTENT-1"},
		Raw:     map[string]any{"note": "gift", "channel": "web"},
	}
	next := PaymentDetails{
		Capture: &CaptureDetails{
			CaptureID:  "CAP-1",
			PayerName:  "Ada Lovelace",
			PayerEmail: "ada@example.com",
			CapturedAt: capturedAt,
		},
		Raw: map[string]any{"channel": "app"},
	}

	got := base.Merge(next)

	require.NotNil(t, got.Capture)
	assert.Equal(t, ProviderPayPal, got.Capture.Provider)
	assert.Equal(t, "INTENT-1", got.Capture.IntentID)
	assert.Equal(t, "CAP-1", got.Capture.CaptureID)
	assert.Equal(t, "Ada Lovelace", got.Capture.PayerName)
	assert.Equal(t, capturedAt, got.Capture.CapturedAt)
	assert.Equal(t, map[string]any{"note": "gift", "channel": "app"}, got.Raw)

	// Inputs are left untouched.
	assert.Empty(t, base.Capture.CaptureID)
	assert.Equal(t, "web", base.Raw["channel"])
}

func TestPaymentDetails_MergeIntoEmpty(t *testing.T) {
	got := PaymentDetails{}.Merge(PaymentDetails{Capture: &CaptureDetails{CaptureID: "CAP-2"}})
	require.NotNil(t, got.Capture)
	assert.Equal(t, "CAP-2", got.Capture.CaptureID)
	assert.Nil(t, got.Raw)
}

func TestPaymentDetails_JSON(t *testing.T) {
	capturedAt := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	d := PaymentDetails{
		Capture: &CaptureDetails{
			Provider:   ProviderPayPal,
			IntentID:   "INTENT-1",
			CaptureID:  "CAP-1",
			CapturedAt: capturedAt,
		},
		Raw: map[string]any{"legacy_ref": "abc"},
	}

	b, err := json.Marshal(d)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, "paypal", flat["provider"])
	assert.Equal(t, "CAP-1", flat["capture_id"])
	assert.Equal(t, "abc", flat["legacy_ref"])
	assert.NotContains(t, flat, "payer_email")

	var back PaymentDetails
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.Capture)
	assert.Equal(t, "INTENT-1", back.Capture.IntentID)
	assert.True(t, capturedAt.Equal(back.Capture.CapturedAt))
	assert.Equal(t, map[string]any{"legacy_ref": "abc"}, back.Raw)
}

func TestParseFields_UnknownProviderKeptRaw(t *testing.T) {
	d := ParseFields(map[string]any{"provider": "stripe", "charge_id": "ch_1"})
	assert.Nil(t, d.Capture)
	assert.Equal(t, "stripe", d.Raw["provider"])
	assert.Equal(t, "ch_1", d.Raw["charge_id"])
}

func TestFormatNumber(t *testing.T) {
	ts := time.UnixMilli(1718452800123)
	assert.Equal(t, "ORD-1718452800123-007", FormatNumber(ts, 7))
	assert.Equal(t, "ORD-1718452800123-999", FormatNumber(ts, 999))
}

func TestNumberGenerator_Next(t *testing.T) {
	g := NewNumberGenerator()
	g.now = func() time.Time { return time.UnixMilli(42) }
	g.rand = func(int) int { return 123 }
	assert.Equal(t, "ORD-42-123", g.Next())
}

func TestHeader_Validate(t *testing.T) {
	h := Header{
		Subtotal:       dec("25.00"),
		ShippingAmount: dec("1.50"),
		TotalAmount:    dec("26.50"),
	}
	require.NoError(t, h.Validate())

	h.TotalAmount = dec("26.00")
	var ute *UnbalancedTotalsError
	require.ErrorAs(t, h.Validate(), &ute)
}

func TestNewItem(t *testing.T) {
	it := NewItem("p1", "Widget", 3, dec("2.50"))
	assert.True(t, dec("7.50").Equal(it.TotalPrice))
}
