package rabbit

import (
	"math"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	HeaderRetryCount  = "x-retry-count"
	HeaderDeathReason = "x-death-reason"
	HeaderDeath       = "x-death"
)

// GetInt32 reads a numeric header. Missing or non-numeric values read as 0;
// values outside the int32 range are clamped to it.
func GetInt32(h amqp.Table, key string) int32 {
	if h == nil {
		return 0
	}
	switch t := h[key].(type) {
	case int32:
		return t
	case int64:
		return clampInt32(t)
	case int:
		return clampInt32(int64(t))
	case int16:
		return int32(t)
	case int8:
		return int32(t)
	case uint8:
		return int32(t)
	case uint16:
		return int32(t)
	case uint32:
		return clampInt32(int64(t))
	case uint64:
		if t > math.MaxInt32 {
			return math.MaxInt32
		}
		return int32(t)
	case float64:
		return clampFloat(t)
	case float32:
		return clampFloat(float64(t))
	default:
		return 0
	}
}

func clampInt32(v int64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

func clampFloat(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

func GetString(h amqp.Table, key string) string {
	if h == nil {
		return ""
	}
	switch t := h[key].(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

// Death is the most recent entry of the broker-maintained x-death header.
type Death struct {
	Reason      string
	Queue       string
	Exchange    string
	Count       int64
	RoutingKeys []string
}

// FirstDeath returns the newest x-death entry, which the broker keeps first.
func FirstDeath(h amqp.Table) (Death, bool) {
	if h == nil {
		return Death{}, false
	}
	list, ok := h[HeaderDeath].([]interface{})
	if !ok || len(list) == 0 {
		return Death{}, false
	}
	t, ok := list[0].(amqp.Table)
	if !ok {
		return Death{}, false
	}

	d := Death{
		Reason:   GetString(t, "reason"),
		Queue:    GetString(t, "queue"),
		Exchange: GetString(t, "exchange"),
	}
	if c, ok := t["count"].(int64); ok {
		d.Count = c
	}
	if keys, ok := t["routing-keys"].([]interface{}); ok {
		for _, k := range keys {
			if s, ok := k.(string); ok {
				d.RoutingKeys = append(d.RoutingKeys, s)
			}
		}
	}
	return d, true
}
