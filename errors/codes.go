package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Pass-level errors
const (
	// ErrCodeEmptyGraph indicates a pass was requested for a graph with no nodes.
	ErrCodeEmptyGraph ErrorCode = "EMPTY_GRAPH"
	// ErrCodeBusy indicates a pass is already in flight.
	ErrCodeBusy ErrorCode = "BUSY"
	// ErrCodePassAborted indicates an unexpected failure outside any single node.
	ErrCodePassAborted ErrorCode = "PASS_ABORTED"
	// ErrCodeClosed indicates the coordinator was disposed.
	ErrCodeClosed ErrorCode = "CLOSED"
)

// Node-level errors
const (
	// ErrCodeNodeFailed indicates a node's script unit failed.
	ErrCodeNodeFailed ErrorCode = "NODE_FAILED"
	// ErrCodeUnitMissing indicates a node has no script unit bound.
	ErrCodeUnitMissing ErrorCode = "UNIT_MISSING"
	// ErrCodeTimeout indicates a unit invocation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeUnavailable indicates a transient failure inside a unit.
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
)

// Resource and validation errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the resource already exists.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// ErrCodeInternal indicates an internal error.
const ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:     true,
	ErrCodeUnavailable: true,
	ErrCodeBusy:        true,
	ErrCodeInternal:    false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
