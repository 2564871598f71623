// Package telemetry sets up structured logging and the line's Prometheus
// metrics.
package telemetry
