// Package engine drives a fulfillment line from one process.
//
// The engine is a single-writer event loop. Store change notifications,
// stage deadlines and external stage signals are queued as events. Run
// dequeues them one at a time and, for each, steps the line until nothing
// more can happen, then arms a timer for the next time-boxed stage.
//
// Several engines may run against the same store, in one process or many.
// Every write the line makes is guarded by the snapshot it was planned
// from, so a lost race costs a skipped step and nothing else.
package engine
