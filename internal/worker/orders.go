package worker

import (
	"context"
	"errors"
	"time"

	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/models"
)

// ErrSimulated is the failure of the "error" scenario.
var ErrSimulated = errors.New("Simulated processing error")

// OrderHandler is the demo business operation, driven by the order's
// scenario tag.
type OrderHandler struct {
	// TimeoutDelay is how long the "timeout" scenario works for.
	TimeoutDelay time.Duration
}

func (h OrderHandler) Handle(ctx context.Context, env Envelope) error {
	switch env.Order.Type {
	case models.ScenarioError:
		return ErrSimulated
	case models.ScenarioTimeout:
		t := time.NewTimer(h.TimeoutDelay)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return nil
	}
}
