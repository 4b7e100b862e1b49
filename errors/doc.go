// Package errors defines the structured error type shared by the graph
// engine, the coordinator and the HTTP adapter. Every error carries a
// machine-readable code, a retryable flag and a recommended HTTP status.
package errors
