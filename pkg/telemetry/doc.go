// Package telemetry provides structured logging setup and Prometheus metrics
// for the opsforge orchestrator and execution engine.
package telemetry
