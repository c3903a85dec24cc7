package rabbit

import amqp "github.com/rabbitmq/amqp091-go"

type Consumer struct {
	ch  *amqp.Channel
	tag string
}

func NewConsumer(ch *amqp.Channel, tag string) *Consumer { return &Consumer{ch: ch, tag: tag} }

// Consume starts a manual-ack consumer. prefetch bounds the number of
// unacknowledged deliveries the broker hands to this channel.
func (c *Consumer) Consume(queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}
	return c.ch.Consume(queue, c.tag, false, false, false, false, nil)
}
