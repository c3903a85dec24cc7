package models

import (
	"encoding/json"
	"time"
)

// Dead-letter sources. Explicit means the worker published the message after
// exhausting retries; the others are x-death reasons set by the broker.
const (
	DeadLetterExplicit = "explicit"
	DeadLetterExpired  = "expired"
	DeadLetterRejected = "rejected"
	DeadLetterUnknown  = "unknown"
)

// DeadLetter is the terminal record of a message observed on the
// dead-letter queue.
type DeadLetter struct {
	MessageID     string          `json:"message_id"`
	OrderID       int             `json:"order_id"`
	Source        string          `json:"source"`
	Reason        string          `json:"reason"`
	Attempts      int32           `json:"attempts"`
	OriginalQueue string          `json:"original_queue,omitempty"`
	Body          json.RawMessage `json:"body"`
	ReceivedAt    time.Time       `json:"received_at"`
}
