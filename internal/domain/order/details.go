package order

import (
	"encoding/json"
	"maps"
	"time"
)

// Provider identifies the payment processor that produced a set of details.
type Provider string

// ProviderPayPal marks details produced by a PayPal capture.
const ProviderPayPal Provider = "paypal"

// Keys of the flat stored representation.
const (
	keyProvider   = "provider"
	keyIntentID   = "gateway_intent_id"
	keyCaptureID  = "capture_id"
	keyPayerName  = "payer_name"
	keyPayerEmail = "payer_email"
	keyCapturedAt = "captured_at"
)

// CaptureDetails is the known shape of processor capture metadata.
type CaptureDetails struct {
	Provider   Provider
	IntentID   string
	CaptureID  string
	PayerName  string
	PayerEmail string
	CapturedAt time.Time
}

// PaymentDetails is the payment metadata stored on an order. Known processor
// fields live in Capture; anything else read back from storage is kept
// verbatim in Raw so that it survives a read-merge-write cycle.
type PaymentDetails struct {
	Capture *CaptureDetails
	Raw     map[string]any
}

// Merge returns d updated with next. Non-empty capture fields of next win;
// raw keys are unioned with next taking precedence.
func (d PaymentDetails) Merge(next PaymentDetails) PaymentDetails {
	out := PaymentDetails{}
	if d.Capture != nil {
		c := *d.Capture
		out.Capture = &c
	}
	if next.Capture != nil {
		if out.Capture == nil {
			out.Capture = &CaptureDetails{}
		}
		mergeCapture(out.Capture, next.Capture)
	}
	if len(d.Raw) > 0 || len(next.Raw) > 0 {
		out.Raw = make(map[string]any, len(d.Raw)+len(next.Raw))
		maps.Copy(out.Raw, d.Raw)
		maps.Copy(out.Raw, next.Raw)
	}
	return out
}

func mergeCapture(dst, src *CaptureDetails) {
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.IntentID != "" {
		dst.IntentID = src.IntentID
	}
	if src.CaptureID != "" {
		dst.CaptureID = src.CaptureID
	}
	if src.PayerName != "" {
		dst.PayerName = src.PayerName
	}
	if src.PayerEmail != "" {
		dst.PayerEmail = src.PayerEmail
	}
	if !src.CapturedAt.IsZero() {
		dst.CapturedAt = src.CapturedAt
	}
}

// Fields flattens d into the stored key/value form.
func (d PaymentDetails) Fields() map[string]any {
	m := make(map[string]any, len(d.Raw)+6)
	maps.Copy(m, d.Raw)
	if c := d.Capture; c != nil {
		setString(m, keyProvider, string(c.Provider))
		setString(m, keyIntentID, c.IntentID)
		setString(m, keyCaptureID, c.CaptureID)
		setString(m, keyPayerName, c.PayerName)
		setString(m, keyPayerEmail, c.PayerEmail)
		if !c.CapturedAt.IsZero() {
			m[keyCapturedAt] = c.CapturedAt.UTC().Format(time.RFC3339Nano)
		}
	}
	return m
}

func setString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

// ParseFields is the inverse of Fields. Keys of a known provider populate
// Capture; everything else, including all keys of an unknown provider, is
// kept in Raw.
func ParseFields(m map[string]any) PaymentDetails {
	var d PaymentDetails
	if len(m) == 0 {
		return d
	}
	raw := maps.Clone(m)

	if p, _ := raw[keyProvider].(string); Provider(p) == ProviderPayPal {
		c := &CaptureDetails{Provider: ProviderPayPal}
		delete(raw, keyProvider)
		c.IntentID = takeString(raw, keyIntentID)
		c.CaptureID = takeString(raw, keyCaptureID)
		c.PayerName = takeString(raw, keyPayerName)
		c.PayerEmail = takeString(raw, keyPayerEmail)
		if s, ok := raw[keyCapturedAt].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				c.CapturedAt = t
				delete(raw, keyCapturedAt)
			}
		}
		d.Capture = c
	}
	if len(raw) > 0 {
		d.Raw = raw
	}
	return d
}

func takeString(m map[string]any, key string) string {
	s, ok := m[key].(string)
	if ok {
		delete(m, key)
	}
	return s
}

// MarshalJSON encodes d in its flat stored form.
func (d PaymentDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Fields())
}

// UnmarshalJSON decodes the flat stored form.
func (d *PaymentDetails) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*d = ParseFields(m)
	return nil
}
