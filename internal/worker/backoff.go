package worker

import "time"

// DefaultBackoffMax caps the delay when Backoff.Max is unset.
const DefaultBackoffMax = 30 * time.Second

// Backoff is the forwarding delay policy: Step * attempt, capped at Max.
type Backoff struct {
	Step time.Duration
	Max  time.Duration
}

func (b Backoff) ceiling() time.Duration {
	if b.Max <= 0 {
		return DefaultBackoffMax
	}
	return b.Max
}

// Delay never exceeds the ceiling and never goes negative.
func (b Backoff) Delay(attempt Attempt) time.Duration {
	if attempt <= 0 || b.Step <= 0 {
		return 0
	}
	max := b.ceiling()
	if time.Duration(attempt) > max/b.Step {
		return max
	}
	return b.Step * time.Duration(attempt)
}
