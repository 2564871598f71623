// Package fulfillment implements the order pipeline of the production line:
// queue, hardware handshake, stage tracking and archival.
//
// Every decision is a pure function of a View, a snapshot of the shared
// store. Decide picks at most one next action and expresses it as a
// store.Batch whose preconditions repeat the parts of the View the decision
// depended on. Any number of processes may run a Line against the same
// store: when two react to the same snapshot, exactly one batch applies and
// the other finds its preconditions stale and does nothing.
//
// Action priority within one step:
//
//  1. archive      sending is Done
//  2. tracker      start or finish a stage of the accepted order
//  3. handshake    hand the next queued order to the actuator
//
// Nothing in this package holds state between steps. Stage deadlines are
// derived from Tracking.StageStartedAt, so a restarted process resumes
// exactly where the store says the line is.
package fulfillment
