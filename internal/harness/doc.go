// Package harness runs YAML line scenarios against a real store and records
// what the line did.
//
// # Scenario Format
//
//	name: scenario_a
//	description: "Two-line cart runs through all three stages"
//	processes: 1
//	config:
//	  stages:
//	    picking: { mode: signal }
//	setup:
//	  - action: toggle
//	    machine: robot_arm
//	flow:
//	  - action: place_order
//	    items:
//	      - { product: "1", quantity: 2, price: 10 }
//	  - action: settle
//	    expect: { actions: [handshake] }
//	  - action: drain
//	  - action: advance
//	    duration: 5s
//	assertions:
//	  - type: trace_order
//	    actions: [handshake, start-stage, archive]
//	  - type: final_state
//	    path: tracking
//	    expect: { itemPicking: Todo }
//
// # Flow Actions
//
//   - place_order: enqueue a cart; price defaults to the catalog price
//   - step: one line step
//   - settle: step until nothing more can happen at the current time
//   - race: one step on every process at once
//   - drain: the actuator zeroes the buffer
//   - advance: move the scenario clock
//   - signal: external completion of a stage
//   - toggle: flip a machine's power
//   - reconcile: consistency pass, repairing when apply is set
//   - set: write a raw value, for seeding damaged state
//
// # Assertion Types
//
//   - trace_contains: an action appears in the trace with matching args
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: the store value at a path matches (subset) or is absent
//   - machine_uptime: a machine's live uptime at the final clock reading
//
// # Deterministic Testing
//
// Every scenario runs on a fresh database in a temporary directory with a
// manual clock and sequential order keys, so traces are identical across
// runs and can be compared against golden files.
package harness
