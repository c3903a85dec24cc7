package worker

import (
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/config"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/rabbit"
)

// BuildTopology returns the routing graph of the pipeline:
//
//	main exchange  --main key-->  main queue   (ttl, dlx -> dead-letter exchange, key = dead-letter key)
//	retry exchange --retry key--> retry queue  (ttl, dlx -> main exchange, key = main key)
//	dlx exchange   --dead key-->  dead-letter queue
//
// Both dead-letter routing keys are set explicitly. Without them the broker
// keeps the message's original key, which has no binding on the target
// exchange, and drops the message.
func BuildTopology(c config.TopologyConfig) rabbit.Topology {
	return rabbit.Topology{
		Exchanges: []rabbit.Exchange{
			{Name: c.DLXExchange, Kind: rabbit.ExchangeDirect, Durable: true},
			{Name: c.MainExchange, Kind: rabbit.ExchangeDirect, Durable: true},
			{Name: c.RetryExchange, Kind: rabbit.ExchangeDirect, Durable: true},
		},
		Queues: []rabbit.Queue{
			{
				Name:    c.DLXQueue,
				Durable: true,
			},
			{
				Name:                 c.MainQueue,
				Durable:              true,
				MessageTTL:           c.MainTTL,
				DeadLetterExchange:   c.DLXExchange,
				DeadLetterRoutingKey: c.DLXRoutingKey,
			},
			{
				Name:                 c.RetryQueue,
				Durable:              true,
				MessageTTL:           c.RetryTTL,
				DeadLetterExchange:   c.MainExchange,
				DeadLetterRoutingKey: c.MainRoutingKey,
			},
		},
		Bindings: []rabbit.Binding{
			{Queue: c.DLXQueue, Exchange: c.DLXExchange, RoutingKey: c.DLXRoutingKey},
			{Queue: c.MainQueue, Exchange: c.MainExchange, RoutingKey: c.MainRoutingKey},
			{Queue: c.RetryQueue, Exchange: c.RetryExchange, RoutingKey: c.RetryRoutingKey},
		},
		Routes: []rabbit.Route{
			{Exchange: c.MainExchange, RoutingKey: c.MainRoutingKey},
			{Exchange: c.RetryExchange, RoutingKey: c.RetryRoutingKey},
			{Exchange: c.DLXExchange, RoutingKey: c.DLXRoutingKey},
		},
	}
}
