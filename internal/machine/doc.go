// Package machine owns the run-time record of each machine on the line and
// the maintenance advisories derived from it.
//
// Stored state changes only on power transitions. Uptime between
// transitions is a read-time projection (CurrentUptime) and is never
// written back.
package machine
