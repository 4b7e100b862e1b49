package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// Is reports whether err is (or wraps) an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// CodeOf returns the code of the AppError wrapped by err, or "" if there is none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// --- Pass errors ---

// EmptyGraph reports a pass requested for a missing or empty graph.
func EmptyGraph() *AppError {
	return &AppError{
		Code: ErrCodeEmptyGraph, Message: "The graph has no nodes to process.",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// Busy reports that another pass is already in flight.
func Busy() *AppError {
	return &AppError{
		Code: ErrCodeBusy, Message: "A processing pass is already running.",
		HTTPStatus: http.StatusConflict, Retryable: true,
	}
}

// PassAborted reports an unexpected failure outside any single node.
func PassAborted(cause error) *AppError {
	return &AppError{
		Code: ErrCodePassAborted, Message: "The processing pass was aborted.",
		HTTPStatus: http.StatusInternalServerError, Cause: cause,
	}
}

// Closed reports use of a disposed component.
func Closed(component string) *AppError {
	return &AppError{
		Code: ErrCodeClosed, Message: fmt.Sprintf("The %s has been closed.", component),
		HTTPStatus: http.StatusServiceUnavailable,
		Details: map[string]any{"component": component},
	}
}

// --- Node errors ---

// NodeFailed wraps a script unit failure for the given node.
func NodeFailed(nodeID int, cause error) *AppError {
	msg := "node processing failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &AppError{
		Code: ErrCodeNodeFailed, Message: msg,
		HTTPStatus: http.StatusInternalServerError,
		Details: map[string]any{"node_id": nodeID}, Cause: cause,
	}
}

// UnitMissing reports a node without a bound script unit.
func UnitMissing(nodeID int) *AppError {
	return &AppError{
		Code: ErrCodeUnitMissing, Message: "No script unit is bound to this node.",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{"node_id": nodeID},
	}
}

// Timeout creates a new AppError for an operation that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "The operation took too long.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// Unavailable marks a transient unit failure; the engine may retry it.
func Unavailable(resource string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeUnavailable, Message: fmt.Sprintf("The %s is temporarily unavailable.", resource),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"resource": resource}, Cause: cause,
	}
}

// --- Common Error Constructors ---

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// AlreadyExists creates a new AppError for a resource that already exists.
func AlreadyExists(resource string) *AppError {
	return &AppError{
		Code: ErrCodeAlreadyExists, Message: fmt.Sprintf("A %s with these details already exists.", resource),
		HTTPStatus: http.StatusConflict, Retryable: false,
		Details: map[string]any{"resource": resource},
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// FromPanic converts a recovered panic value into an error.
func FromPanic(recovered any) error {
	if err, ok := recovered.(error); ok {
		return err
	}
	return stderrors.New(fmt.Sprint(recovered))
}
