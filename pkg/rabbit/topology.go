package rabbit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeDirect = "direct"
	ExchangeFanout = "fanout"
	ExchangeTopic  = "topic"
)

// ErrUnroutable marks a dead-letter target or publish route that resolves to
// no binding; the broker would silently drop such messages.
var ErrUnroutable = errors.New("rabbit: unroutable")

type Exchange struct {
	Name    string
	Kind    string
	Durable bool
}

type Queue struct {
	Name    string
	Durable bool

	// MessageTTL of zero leaves x-message-ttl unset.
	MessageTTL time.Duration

	DeadLetterExchange string
	// DeadLetterRoutingKey overrides the message's original routing key when
	// the broker dead-letters it. Empty means no override.
	DeadLetterRoutingKey string
}

func (q Queue) Args() amqp.Table {
	args := amqp.Table{}
	if q.MessageTTL > 0 {
		args["x-message-ttl"] = int32(q.MessageTTL.Milliseconds())
	}
	if q.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = q.DeadLetterExchange
		if q.DeadLetterRoutingKey != "" {
			args["x-dead-letter-routing-key"] = q.DeadLetterRoutingKey
		}
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

// Route is a publish path application code relies on.
type Route struct {
	Exchange   string
	RoutingKey string
}

type Topology struct {
	Exchanges []Exchange
	Queues    []Queue
	Bindings  []Binding
	Routes    []Route
}

// Declarer is the subset of *amqp.Channel needed to declare a topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// TopologyError wraps a failed declaration. It is fatal at startup.
type TopologyError struct {
	Entity string
	Name   string
	Err    error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("declare %s %q: %v", e.Entity, e.Name, e.Err)
}

func (e *TopologyError) Unwrap() error { return e.Err }

// IsPreconditionFailed reports whether the broker rejected a redeclaration
// because the existing entity has different arguments.
func IsPreconditionFailed(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed
}

// Declare validates the topology and then declares exchanges, queues and
// bindings in that order. Declaring the same topology twice is a no-op on
// the broker; declaring a queue with different arguments fails.
func (t Topology) Declare(d Declarer) error {
	if err := t.Validate(); err != nil {
		return err
	}

	for _, ex := range t.Exchanges {
		if err := d.ExchangeDeclare(ex.Name, ex.Kind, ex.Durable, false, false, false, nil); err != nil {
			return &TopologyError{Entity: "exchange", Name: ex.Name, Err: err}
		}
	}
	for _, q := range t.Queues {
		if _, err := d.QueueDeclare(q.Name, q.Durable, false, false, false, q.Args()); err != nil {
			return &TopologyError{Entity: "queue", Name: q.Name, Err: err}
		}
	}
	for _, b := range t.Bindings {
		if err := d.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, nil); err != nil {
			return &TopologyError{Entity: "binding", Name: b.Queue + "<-" + b.Exchange + ":" + b.RoutingKey, Err: err}
		}
	}
	return nil
}

// Validate checks references between entities and that every dead-letter
// target and declared route resolves to at least one queue.
func (t Topology) Validate() error {
	var errs []error

	exchanges := map[string]Exchange{}
	for _, ex := range t.Exchanges {
		exchanges[ex.Name] = ex
	}
	queues := map[string]bool{}
	for _, q := range t.Queues {
		queues[q.Name] = true
	}

	for _, b := range t.Bindings {
		if _, ok := exchanges[b.Exchange]; !ok {
			errs = append(errs, fmt.Errorf("binding of %q references undeclared exchange %q", b.Queue, b.Exchange))
		}
		if !queues[b.Queue] {
			errs = append(errs, fmt.Errorf("binding on %q references undeclared queue %q", b.Exchange, b.Queue))
		}
	}

	for _, q := range t.Queues {
		if q.DeadLetterExchange == "" {
			continue
		}
		if _, ok := exchanges[q.DeadLetterExchange]; !ok {
			errs = append(errs, fmt.Errorf("queue %q dead-letters to undeclared exchange %q", q.Name, q.DeadLetterExchange))
			continue
		}
		for _, key := range t.DeadLetterKeys(q) {
			if len(t.Resolve(q.DeadLetterExchange, key)) == 0 {
				errs = append(errs, fmt.Errorf("queue %q dead-letters to %q with key %q: %w",
					q.Name, q.DeadLetterExchange, key, ErrUnroutable))
			}
		}
	}

	for _, r := range t.Routes {
		if len(t.Resolve(r.Exchange, r.RoutingKey)) == 0 {
			errs = append(errs, fmt.Errorf("route %q with key %q: %w", r.Exchange, r.RoutingKey, ErrUnroutable))
		}
	}

	return errors.Join(errs...)
}

// DeadLetterKeys returns the routing keys a dead-lettered message from q
// carries: the override if set, otherwise every key q is bound with.
func (t Topology) DeadLetterKeys(q Queue) []string {
	if q.DeadLetterRoutingKey != "" {
		return []string{q.DeadLetterRoutingKey}
	}
	var keys []string
	for _, b := range t.Bindings {
		if b.Queue == q.Name {
			keys = append(keys, b.RoutingKey)
		}
	}
	return keys
}

// Resolve returns the queues a message published to exchange with key
// reaches.
func (t Topology) Resolve(exchange, key string) []string {
	var kind string
	found := false
	for _, ex := range t.Exchanges {
		if ex.Name == exchange {
			kind, found = ex.Kind, true
			break
		}
	}
	if !found {
		return nil
	}

	var out []string
	for _, b := range t.Bindings {
		if b.Exchange != exchange {
			continue
		}
		switch kind {
		case ExchangeFanout:
			out = append(out, b.Queue)
		case ExchangeTopic:
			if topicMatch(b.RoutingKey, key) {
				out = append(out, b.Queue)
			}
		default:
			if b.RoutingKey == key {
				out = append(out, b.Queue)
			}
		}
	}
	return out
}

func topicMatch(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(p, k []string) bool {
	if len(p) == 0 {
		return len(k) == 0
	}
	switch p[0] {
	case "#":
		for i := 0; i <= len(k); i++ {
			if matchWords(p[1:], k[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(k) > 0 && matchWords(p[1:], k[1:])
	default:
		return len(k) > 0 && p[0] == k[0] && matchWords(p[1:], k[1:])
	}
}
