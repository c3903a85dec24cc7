package models

import (
	"encoding/json"
	"fmt"
)

// Scenario selects how the worker treats an order. It exists to exercise
// every path of the retry pipeline.
type Scenario string

const (
	ScenarioNormal  Scenario = "normal"
	ScenarioError   Scenario = "error"
	ScenarioTimeout Scenario = "timeout"
)

type Order struct {
	ID      int      `json:"id"`
	Type    Scenario `json:"type"`
	Content string   `json:"content,omitempty"`
}

func DecodeOrder(b []byte) (Order, error) {
	var o Order
	if err := json.Unmarshal(b, &o); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	return o, nil
}

// SampleOrders are the orders the producer publishes, one per scenario.
func SampleOrders() []Order {
	return []Order{
		{ID: 1, Type: ScenarioNormal, Content: "This is a normal message"},
		{ID: 2, Type: ScenarioError, Content: "This message will cause a error"},
		{ID: 3, Type: ScenarioTimeout, Content: "This message will be timed out"},
	}
}
