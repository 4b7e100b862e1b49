// Package resilience retries script unit invocations that fail with a
// transient error.
//
// Retries are off unless MaxAttempts is greater than one:
//
//	engine:
//	  retry:
//	    max_attempts: 3
//	    initial_backoff: 50ms
//	    max_backoff: 2s
//
// Only errors marked retryable (errors.Timeout, errors.Unavailable) are
// retried by default. Context cancellation always stops the loop.
package resilience
