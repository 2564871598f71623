package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

// AssertionContext carries what final-state assertions read.
type AssertionContext struct {
	Store *store.Store
	Now   time.Time
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(ctx, actx.Store, a)
		case AssertMachineUptime:
			err = assertMachineUptime(ctx, actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// assertTraceContains checks for an event with the action and matching args.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Action == a.Action && matchArgs(event.Args, a.Args) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", a.Action, a.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that actions appear in order. They need not be
// consecutive, and each one is matched after the previous match.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, want := range a.Actions {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if event.Action == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual:   fmt.Sprintf("%s not found after position %d", want, pos),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the action appears exactly Count times,
// counting only events whose args match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action == a.Action && matchArgs(event.Args, a.Args) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState reads Path and compares it with the assertion.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	snap, err := st.Read(ctx, a.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", a.Path, err)
	}

	if a.Absent {
		if snap.Exists() {
			canon, _ := snap.Canonical()
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("nothing at %s", a.Path),
				Actual:   canon,
			}
		}
		return nil
	}
	if !snap.Exists() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("a value at %s", a.Path),
			Actual:   "nothing stored",
		}
	}

	if a.Value != nil {
		return compareValue(a.Path, a.Value, snap.Value)
	}
	if len(a.Expect) == 0 {
		return nil
	}

	obj, ok := snap.Value.(map[string]any)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("an object at %s", a.Path),
			Actual:   fmt.Sprintf("%T", snap.Value),
		}
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := compareValue(store.Join(a.Path, k), a.Expect[k], obj[k]); err != nil {
			return err
		}
	}
	return nil
}

func compareValue(path string, expected, actual any) error {
	eq, err := store.Equal(expected, actual)
	if err != nil {
		return fmt.Errorf("compare %s: %w", path, err)
	}
	if !eq {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", path, expected),
			Actual:   fmt.Sprintf("%s = %v", path, actual),
		}
	}
	return nil
}

// assertMachineUptime compares a machine's live uptime at the final clock
// reading.
func assertMachineUptime(ctx context.Context, actx *AssertionContext, a Assertion) error {
	snap, err := actx.Store.Read(ctx, model.MachinePath(a.Machine))
	if err != nil {
		return fmt.Errorf("read machine %s: %w", a.Machine, err)
	}
	if !snap.Exists() {
		return &AssertionError{
			Type:     AssertMachineUptime,
			Expected: fmt.Sprintf("machine %s", a.Machine),
			Actual:   "not provisioned",
		}
	}
	var m model.Machine
	if err := snap.Decode(&m); err != nil {
		return err
	}

	got := time.Duration(machine.CurrentUptime(m, model.Millis(actx.Now))) * time.Millisecond
	if got != a.Uptime {
		return &AssertionError{
			Type:     AssertMachineUptime,
			Expected: fmt.Sprintf("%s uptime %s", a.Machine, a.Uptime),
			Actual:   got.String(),
		}
	}
	return nil
}

// matchArgs checks that every expected arg is present with the same
// rendering. Extra args are ignored.
func matchArgs(actual map[string]string, expected map[string]any) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok || got != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
