package harness

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TraceEvent is one thing the line or the scenario did.
type TraceEvent struct {
	Seq int `json:"seq"`
	// At is the scenario clock, relative to its start.
	At time.Duration `json:"at"`
	// Process is the 1-based process that acted; 0 for a race, where the
	// winner is not deterministic.
	Process int               `json:"process"`
	Action  string            `json:"action"`
	Args    map[string]string `json:"args,omitempty"`
}

// String renders the event as a single trace line:
//
//	004 +5s p1 finish-stage order=order-0001 stage=itemPicking
func (e TraceEvent) String() string {
	proc := "p*"
	if e.Process > 0 {
		proc = "p" + strconv.Itoa(e.Process)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%03d +%s %s %s", e.Seq, e.At, proc, e.Action)

	keys := make([]string, 0, len(e.Args))
	for k := range e.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Args[k])
	}
	return b.String()
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every flow expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists line actions and scenario commands in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event, numbering it.
func (r *Result) AddTrace(at time.Duration, process int, action string, args map[string]string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     len(r.Trace) + 1,
		At:      at,
		Process: process,
		Action:  action,
		Args:    args,
	})
}

// Actions returns the action of every trace event.
func (r *Result) Actions() []string {
	out := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		out[i] = e.Action
	}
	return out
}
