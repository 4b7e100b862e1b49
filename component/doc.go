// Package component manages the lifecycle of the long-running parts of a
// nodeflow service: the HTTP server, the SSE hub, telemetry exporters and
// the coordinator.
//
// Components start in registration order and stop in reverse order.
// Health results use observability.Health so they aggregate into the
// service health report.
package component
