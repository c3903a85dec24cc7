package rabbit

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (c *recordingChannel) PublishWithDeferredConfirmWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil, c.err
}

func TestPublisherFillsDefaults(t *testing.T) {
	ch := &recordingChannel{}
	p := NewPublisher(ch, "orders_exchange")

	err := p.PublishMessage(context.Background(), "order", amqp.Publishing{
		Body:    []byte(`{"id":1}`),
		Headers: amqp.Table{HeaderRetryCount: int32(1)},
	})
	require.NoError(t, err)

	assert.Equal(t, "orders_exchange", ch.exchange)
	assert.Equal(t, "order", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.False(t, ch.msg.Timestamp.IsZero())
	assert.Equal(t, int32(1), ch.msg.Headers[HeaderRetryCount])
}

func TestPublisherKeepsExplicitProperties(t *testing.T) {
	ch := &recordingChannel{}
	p := NewPublisher(ch, "x")

	require.NoError(t, p.PublishMessage(context.Background(), "k", amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Transient,
		MessageId:    "m-1",
	}))
	assert.Equal(t, "text/plain", ch.msg.ContentType)
	assert.Equal(t, amqp.Transient, ch.msg.DeliveryMode)
	assert.Equal(t, "m-1", ch.msg.MessageId)
}

func TestPublisherWrapsError(t *testing.T) {
	boom := errors.New("channel closed")
	p := NewPublisher(&recordingChannel{err: boom}, "retry")

	err := p.PublishJSON(context.Background(), "retry", map[string]int{"id": 2}, amqp.Publishing{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "retry/retry")
}

func TestPublishJSONKeepsProperties(t *testing.T) {
	ch := &recordingChannel{}
	p := NewPublisher(ch, "orders_exchange")

	require.NoError(t, p.PublishJSON(context.Background(), "order", map[string]any{"id": 1, "type": "normal"}, amqp.Publishing{
		MessageId:   "m-7",
		ContentType: "text/plain",
	}))

	assert.JSONEq(t, `{"id":1,"type":"normal"}`, string(ch.msg.Body))
	assert.Equal(t, "m-7", ch.msg.MessageId)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Nil(t, ch.msg.Headers)
}

func TestPublishJSONMarshalError(t *testing.T) {
	ch := &recordingChannel{}
	p := NewPublisher(ch, "orders_exchange")

	err := p.PublishJSON(context.Background(), "order", make(chan int), amqp.Publishing{})
	assert.Error(t, err)
	assert.Empty(t, ch.key)
}
