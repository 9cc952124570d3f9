package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type stubChannel struct {
	published []published
	err       error
	closed    bool
}

func (c *stubChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *stubChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	ch := &stubChannel{}
	p := NewPublisher(ch, "")

	at := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), checkout.Event{
		Type:        checkout.EventOrderPaid,
		IntentID:    "INTENT-1",
		CaptureID:   "CAP-1",
		OrderID:     "order-1",
		OrderNumber: "ORD-1-001",
		Amount:      decimal.RequireFromString("26.50"),
		Currency:    "USD",
		OccurredAt:  at,
	})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, "order.paid", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, at, got.msg.Timestamp)
	assert.NotEmpty(t, got.msg.MessageId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "order.paid", body["type"])
	assert.Equal(t, "INTENT-1", body["intent_id"])
	assert.Equal(t, "26.5", body["amount"])
	assert.NotContains(t, body, "reason")
}

func TestPublisher_PublishError(t *testing.T) {
	boom := errors.New("channel closed")
	p := NewPublisher(&stubChannel{err: boom}, "checkout")

	err := p.Publish(context.Background(), checkout.Event{Type: checkout.EventRefundFailed})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "payment.refund_failed")
}

func TestPublisher_Close(t *testing.T) {
	ch := &stubChannel{}
	require.NoError(t, NewPublisher(ch, "checkout").Close())
	assert.True(t, ch.closed)
}
