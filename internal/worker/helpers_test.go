package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/models"
	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/rabbit"
)

// recordingAck counts settlements of a delivery.
type recordingAck struct {
	mu       sync.Mutex
	acks     int
	rejects  int
	requeues int
	nacks    int
}

func (a *recordingAck) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *recordingAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeues++
	} else {
		a.nacks++
	}
	return nil
}

func (a *recordingAck) Reject(_ uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeues++
	} else {
		a.rejects++
	}
	return nil
}

func (a *recordingAck) settlements() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks + a.rejects + a.requeues + a.nacks
}

type sent struct {
	key string
	msg amqp.Publishing
}

type recordingPublisher struct {
	mu       sync.Mutex
	exchange string
	sent     []sent
	err      error
}

func newPublisher(exchange string) *recordingPublisher {
	return &recordingPublisher{exchange: exchange}
}

func (p *recordingPublisher) Exchange() string { return p.exchange }

func (p *recordingPublisher) PublishMessage(_ context.Context, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sent{key: key, msg: msg})
	return nil
}

func (p *recordingPublisher) messages() []sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sent(nil), p.sent...)
}

type recordingRecorder struct {
	mu      sync.Mutex
	records []models.DeadLetter
	err     error
}

func (r *recordingRecorder) Record(_ context.Context, dl models.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, dl)
	return r.err
}

type memoryProcessed struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (m *memoryProcessed) IsProcessed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[id], nil
}

func (m *memoryProcessed) MarkProcessed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids == nil {
		m.ids = map[string]bool{}
	}
	m.ids[id] = true
	return nil
}

// syncBuffer lets handlers running on several goroutines share one log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// records returns every log line whose message equals msg.
func (b *syncBuffer) records(t *testing.T, msg string) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		if rec["message"] == msg {
			out = append(out, rec)
		}
	}
	return out
}

// outcomes returns the outcome field of every log line that carries one.
func (b *syncBuffer) outcomes(t *testing.T) []string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		if o, ok := rec["outcome"].(string); ok {
			out = append(out, o)
		}
	}
	return out
}

func testLogger(w *syncBuffer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.DebugLevel)
}

func orderBody(t *testing.T, o models.Order) []byte {
	t.Helper()
	b, err := json.Marshal(o)
	require.NoError(t, err)
	return b
}

func newDelivery(t *testing.T, o models.Order, headers amqp.Table, ack amqp.Acknowledger) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		MessageId:    "msg-" + string(o.Type),
		ContentType:  "application/json",
		Body:         orderBody(t, o),
		Headers:      headers,
	}
}

// redeliver turns a captured publish into the delivery the broker would
// hand to the consumer of the target queue.
func redeliver(s sent, ack amqp.Acknowledger) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		MessageId:    s.msg.MessageId,
		ContentType:  s.msg.ContentType,
		Body:         s.msg.Body,
		Headers:      s.msg.Headers,
		RoutingKey:   s.key,
	}
}

type pipeline struct {
	logs  *syncBuffer
	main  *recordingPublisher
	retry *recordingPublisher
	dlx   *recordingPublisher
	rec   *recordingRecorder

	proc  *Processor
	sched *RetryScheduler
	sink  *DeadLetterSink
}

func newPipeline(maxRetries int) *pipeline {
	p := &pipeline{
		logs:  &syncBuffer{},
		main:  newPublisher("orders_exchange"),
		retry: newPublisher("orders_retry_exchange"),
		dlx:   newPublisher("orders_dlx_exchange"),
		rec:   &recordingRecorder{},
	}
	log := testLogger(p.logs)

	p.sink = &DeadLetterSink{
		Log:        log,
		Pub:        p.dlx,
		RoutingKey: "dead",
		Queue:      "orders_dlx_queue",
		Recorder:   p.rec,
	}
	p.sched = &RetryScheduler{
		Log:             log,
		RetryPub:        p.retry,
		RetryRoutingKey: "retry",
		MainPub:         p.main,
		MainRoutingKey:  "order",
		MaxRetries:      maxRetries,
		Backoff:         Backoff{Step: 2 * time.Millisecond, Max: 20 * time.Millisecond},
		Sink:            p.sink,
	}
	p.proc = &Processor{
		Log:        log,
		Handler:    OrderHandler{TimeoutDelay: 0}.Handle,
		Deadline:   0,
		MaxRetries: maxRetries,
		Scheduler:  p.sched,
		Sink:       p.sink,
	}
	return p
}

func retryCount(s sent) int32 {
	return rabbit.GetInt32(s.msg.Headers, rabbit.HeaderRetryCount)
}
