package rabbit

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Conn struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func Connect(url string) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Conn{Conn: conn, Ch: ch}, nil
}

// Channel opens an additional channel. Each consumer gets its own so that
// QoS prefetch applies per queue.
func (c *Conn) Channel() (*amqp.Channel, error) {
	return c.Conn.Channel()
}

// ConfirmChannel opens a channel in publisher-confirm mode.
func (c *Conn) ConfirmChannel() (*amqp.Channel, error) {
	ch, err := c.Conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

// NotifyClose reports connection loss; the receiver is expected to log it.
func (c *Conn) NotifyClose() <-chan *amqp.Error {
	return c.Conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (c *Conn) Close() error {
	if c.Ch != nil {
		_ = c.Ch.Close()
	}
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}

func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 5*time.Second)
}
