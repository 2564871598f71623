package model

import (
	"encoding/json"
	"fmt"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderQueued     OrderStatus = "queued"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
)

// Valid reports whether s is one of the declared order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderQueued, OrderProcessing, OrderCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is the single legal successor of s.
// Orders only move queued → processing → completed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderQueued:
		return next == OrderProcessing
	case OrderProcessing:
		return next == OrderCompleted
	}
	return false
}

// UnmarshalJSON rejects statuses outside the closed set.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("order status: %w", err)
	}
	v := OrderStatus(raw)
	if !v.Valid() {
		return fmt.Errorf("order status: unknown value %q", raw)
	}
	*s = v
	return nil
}

// StageStatus is the state of one pipeline stage.
type StageStatus string

const (
	StageTodo       StageStatus = "Todo"
	StageInProgress StageStatus = "InProgress"
	StageDone       StageStatus = "Done"
)

// Valid reports whether s is one of the declared stage statuses.
func (s StageStatus) Valid() bool {
	switch s {
	case StageTodo, StageInProgress, StageDone:
		return true
	}
	return false
}

// rank orders stage statuses so that regressions are detectable.
func (s StageStatus) rank() int {
	switch s {
	case StageInProgress:
		return 1
	case StageDone:
		return 2
	}
	return 0
}

// CanAdvanceTo reports whether next is the immediate successor of s.
func (s StageStatus) CanAdvanceTo(next StageStatus) bool {
	return next.rank() == s.rank()+1
}

// Regresses reports whether moving from s to next goes backwards.
func (s StageStatus) Regresses(next StageStatus) bool {
	return next.rank() < s.rank()
}

// UnmarshalJSON rejects statuses outside the closed set.
func (s *StageStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("stage status: %w", err)
	}
	v := StageStatus(raw)
	if !v.Valid() {
		return fmt.Errorf("stage status: unknown value %q", raw)
	}
	*s = v
	return nil
}

// Stage names a step of the fulfillment pipeline. The value doubles as the
// field name under the tracking subtree.
type Stage string

const (
	StagePicking   Stage = "itemPicking"
	StagePackaging Stage = "packaging"
	StageSending   Stage = "sending"
)

// Stages lists the pipeline in its enforced order.
var Stages = []Stage{StagePicking, StagePackaging, StageSending}

// Index returns the position of s in the pipeline, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(Stages) {
		return "", false
	}
	return Stages[i+1], true
}

// Previous returns the stage that precedes s.
func (s Stage) Previous() (Stage, bool) {
	i := s.Index()
	if i <= 0 {
		return "", false
	}
	return Stages[i-1], true
}

// ParseStage accepts the wire name or a short alias (picking, packing, ship).
func ParseStage(name string) (Stage, error) {
	switch name {
	case string(StagePicking), "picking", "pick":
		return StagePicking, nil
	case string(StagePackaging), "packing", "pack":
		return StagePackaging, nil
	case string(StageSending), "send", "ship", "shipping":
		return StageSending, nil
	}
	return "", fmt.Errorf("unknown stage %q", name)
}

// Power is the ON/OFF state of a machine.
type Power string

const (
	PowerOn  Power = "ON"
	PowerOff Power = "OFF"
)

// Valid reports whether p is ON or OFF.
func (p Power) Valid() bool {
	return p == PowerOn || p == PowerOff
}

// UnmarshalJSON rejects anything but ON and OFF.
func (p *Power) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("machine power: %w", err)
	}
	v := Power(raw)
	if !v.Valid() {
		return fmt.Errorf("machine power: unknown value %q", raw)
	}
	*p = v
	return nil
}
