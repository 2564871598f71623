package harness

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{
		"scenario_a",
		"scenario_b",
		"scenario_c",
		"signal_completion",
		"reconcile_stale",
	} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ScenarioB_IsRepeatable(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "scenario_b.yaml"))
	require.NoError(t, err)

	// The race winner varies between runs; the trace must not.
	for i := 0; i < 5; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		require.True(t, result.Pass, "run %d: %v", i, result.Errors)
		AssertGolden(t, "scenario_b", result)
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Place one order and step once",
		Flow: []Step{
			{Action: ActionPlaceOrder, Items: []ItemArg{{Product: "4", Quantity: 2}}},
			{Action: ActionStep, Expect: &Expect{Actions: []string{"handshake"}}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Action: "place_order", Args: map[string]any{"total": 15998}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "001 +0s p1 place_order order=order-0001 total=15998", result.Trace[0].String())
	assert.Equal(t, []string{"place_order", "handshake"}, result.Actions())
}

func TestRun_SetupIsNotTraced(t *testing.T) {
	scenario := &Scenario{
		Name:        "setup",
		Description: "Setup toggles are applied but not traced",
		Setup: []Step{
			{Action: ActionToggle, Machine: "conveyor"},
		},
		Flow: []Step{
			{Action: ActionAdvance, Duration: 90 * time.Second},
		},
		Assertions: []Assertion{
			{Type: AssertMachineUptime, Machine: "conveyor", Uptime: 90 * time.Second},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
}

func TestRun_UnmetExpectationFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "unmet",
		Description: "A step expectation that does not hold",
		Flow: []Step{
			{Action: ActionPlaceOrder, Items: []ItemArg{{Product: "1", Quantity: 1}}},
			{Action: ActionSettle, Expect: &Expect{Actions: []string{"handshake", "start-stage"}}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: "handshake", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "flow[1] settle")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "unknown_item",
		Description: "An order for a product outside the catalog",
		Flow: []Step{
			{Action: ActionPlaceOrder, Items: []ItemArg{{Product: "99", Quantity: 1}}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Path: "orders", Absent: true},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "UNKNOWN_ITEM")
	assert.Equal(t, "place_order", result.Trace[0].Action)
	assert.Equal(t, "UNKNOWN_ITEM", result.Trace[0].Args["error"])
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing_error",
		Description: "Expecting an error from a valid order",
		Flow: []Step{
			{Action: ActionPlaceOrder, Items: []ItemArg{{Product: "1", Quantity: 1}}, Expect: &Expect{Error: "INVALID_ORDER"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: "place_order", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error INVALID_ORDER")
}

func TestRun_FailedAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:        "failed_assertion",
		Description: "Final state does not match",
		Flow: []Step{
			{Action: ActionPlaceOrder, Items: []ItemArg{{Product: "1", Quantity: 1}}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Path: "orders/order-0001", Expect: map[string]any{"status": "processing"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "orders/order-0001/status")
}

func TestRun_BadConfig(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_config",
		Description: "Sending cannot be signal-only",
		Config: map[string]any{
			"stages": map[string]any{"sending": map[string]any{"mode": "signal"}},
		},
		Flow:       []Step{{Action: ActionStep}},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "step"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario config")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	scenario := &Scenario{
		Name:        "setup_failure",
		Description: "Setup toggles an unknown machine",
		Setup:       []Step{{Action: ActionToggle, Machine: "press"}},
		Flow:        []Step{{Action: ActionStep}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Action: "step"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNKNOWN_MACHINE")
}
