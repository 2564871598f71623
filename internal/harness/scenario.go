package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run of the line.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Processes is how many independent store handles share the database.
	// Zero means one.
	Processes int `yaml:"processes,omitempty"`

	// Config is merged over the default configuration, as a config file
	// would be.
	Config map[string]any `yaml:"config,omitempty"`

	// Setup runs before the flow and is not traced.
	Setup []Step `yaml:"setup,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted action. Which fields apply depends on Action.
type Step struct {
	Action string `yaml:"action"`

	// Process is the 1-based process performing the step. Zero means 1.
	Process int `yaml:"process,omitempty"`

	Items    []ItemArg     `yaml:"items,omitempty"`    // place_order
	Duration time.Duration `yaml:"duration,omitempty"` // advance
	Stage    string        `yaml:"stage,omitempty"`    // signal
	Machine  string        `yaml:"machine,omitempty"`  // toggle
	Apply    bool          `yaml:"apply,omitempty"`    // reconcile
	Path     string        `yaml:"path,omitempty"`     // set
	Value    any           `yaml:"value,omitempty"`    // set

	Expect *Expect `yaml:"expect,omitempty"`
}

// ItemArg is one cart line of a place_order step.
type ItemArg struct {
	Product  string `yaml:"product"`
	Quantity int    `yaml:"quantity"`
	Price    *int64 `yaml:"price,omitempty"`
}

// Expect checks the outcome of a single step.
type Expect struct {
	// Actions are the line actions the step applied, in order.
	Actions []string `yaml:"actions,omitempty"`
	// Error is the expected error code. The step must fail with it.
	Error string `yaml:"error,omitempty"`
	// Findings are the reconcile finding kinds, in order.
	Findings []string `yaml:"findings,omitempty"`
}

// Flow step actions.
const (
	ActionPlaceOrder = "place_order"
	ActionStep       = "step"
	ActionSettle     = "settle"
	ActionRace       = "race"
	ActionDrain      = "drain"
	ActionAdvance    = "advance"
	ActionSignal     = "signal"
	ActionToggle     = "toggle"
	ActionReconcile  = "reconcile"
	ActionSet        = "set"
)

// Assertion validates the trace or the final store state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": action appears in trace with args
	// - "trace_order": actions appear in order
	// - "trace_count": action appears exactly Count times
	// - "final_state": the value at Path matches Expect, or is absent
	// - "machine_uptime": Machine's live uptime equals Uptime
	Type string `yaml:"type"`

	Action string `yaml:"action,omitempty"`

	// Args are matched as a subset of the event args.
	Args map[string]any `yaml:"args,omitempty"`

	Actions []string `yaml:"actions,omitempty"`
	Count   int      `yaml:"count,omitempty"`

	Path string `yaml:"path,omitempty"`
	// Expect is matched as a subset of the object at Path.
	Expect map[string]any `yaml:"expect,omitempty"`
	// Value is compared whole against a scalar at Path.
	Value  any  `yaml:"value,omitempty"`
	Absent bool `yaml:"absent,omitempty"`

	Machine string        `yaml:"machine,omitempty"`
	Uptime  time.Duration `yaml:"uptime,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertMachineUptime = "machine_uptime"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// processes returns the effective process count.
func (s *Scenario) processes() int {
	if s.Processes <= 0 {
		return 1
	}
	return s.Processes
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Processes < 0 {
		return fmt.Errorf("processes must be non-negative")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(s, step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(s, step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Scenario, step Step) error {
	if step.Process < 0 || step.Process > s.processes() {
		return fmt.Errorf("process %d out of range 1..%d", step.Process, s.processes())
	}

	switch step.Action {
	case ActionPlaceOrder:
		if len(step.Items) == 0 {
			return fmt.Errorf("place_order needs items")
		}
	case ActionAdvance:
		if step.Duration <= 0 {
			return fmt.Errorf("advance needs a positive duration")
		}
	case ActionSignal:
		if step.Stage == "" {
			return fmt.Errorf("signal needs a stage")
		}
	case ActionToggle:
		if step.Machine == "" {
			return fmt.Errorf("toggle needs a machine")
		}
	case ActionSet:
		if step.Path == "" {
			return fmt.Errorf("set needs a path")
		}
	case ActionStep, ActionSettle, ActionRace, ActionDrain, ActionReconcile:
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for final_state", index)
		}
		if a.Absent && (len(a.Expect) > 0 || a.Value != nil) {
			return fmt.Errorf("assertions[%d]: absent excludes expect and value", index)
		}
		if len(a.Expect) > 0 && a.Value != nil {
			return fmt.Errorf("assertions[%d]: use either expect or value", index)
		}
	case AssertMachineUptime:
		if a.Machine == "" {
			return fmt.Errorf("assertions[%d]: machine is required for machine_uptime", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
