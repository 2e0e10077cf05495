// Package apierror defines the error-kind taxonomy shared by every service
// layer in the conversation execution engine (task, checkpoint, graph,
// conversation, streamengine, deployment, copilot, notify) and the HTTP
// transport that maps it to status codes and stream "error" envelopes.
package apierror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into the small set of behavior categories the
// engine treats differently: whether it is surfaced immediately, retried,
// downgraded, or ends a live stream.
type Kind string

const (
	// KindUnauthorized indicates a missing or invalid caller identity.
	KindUnauthorized Kind = "unauthorized"

	// KindForbidden indicates the caller lacks the required role on the graph
	// or workspace.
	KindForbidden Kind = "forbidden"

	// KindNotFound indicates the referenced graph, conversation, version, or
	// checkpoint does not exist.
	KindNotFound Kind = "not_found"

	// KindValidation indicates a malformed request body, invalid role, quota
	// violation, or duplicate name supplied by the caller.
	KindValidation Kind = "validation"

	// KindConflict indicates a duplicate-name insert or a concurrent write
	// race the caller can retry.
	KindConflict Kind = "conflict"

	// KindTransientInfra indicates a retryable infrastructure failure (DB
	// contention, checkpoint-store conflict). Callers within the engine retry
	// internally before this kind reaches a transport boundary.
	KindTransientInfra Kind = "transient_infra"

	// KindRuntimeError indicates a graph node execution failure reported by a
	// GraphRuntime implementation mid-stream.
	KindRuntimeError Kind = "runtime_error"

	// KindClientClosed indicates the client disconnected mid-stream.
	KindClientClosed Kind = "client_closed"

	// KindInternal indicates an unexpected, unclassified failure.
	KindInternal Kind = "internal"
)

// Error is a structured, taxonomy-classified failure. It preserves the
// causal chain via Unwrap so callers can still use errors.Is/As against
// sentinel errors from lower layers while the transport only needs Kind to
// pick a status code or stream error code.
type Error struct {
	kind      Kind
	op        string
	message   string
	retryable bool
	cause     error
}

// New constructs an Error of the given kind with a message. cause may be nil.
func New(kind Kind, op, message string, cause error) *Error {
	if kind == "" {
		panic("apierror: kind is required")
	}
	return &Error{kind: kind, op: op, message: message, cause: cause}
}

// Retryable marks the error as safe for the caller to retry without changing
// the request (used for KindTransientInfra and KindConflict).
func (e *Error) Retryable(v bool) *Error {
	e.retryable = v
	return e
}

// Kind returns the coarse-grained error classification.
func (e *Error) Kind() Kind { return e.kind }

// Op returns the operation name that produced the failure, when known.
func (e *Error) Op() string { return e.op }

// IsRetryable reports whether retrying the same request may succeed.
func (e *Error) IsRetryable() bool { return e.retryable }

func (e *Error) Error() string {
	op := e.op
	if op == "" {
		op = "request"
	}
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "error"
	}
	return fmt.Sprintf("%s(%s): %s", e.kind, op, msg)
}

// Unwrap returns the underlying cause to support errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// As returns the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it wraps an *Error, otherwise KindInternal.
// Transport and streamengine code use this to pick a status code or stream
// error code without needing to assert the concrete type.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.kind
	}
	return KindInternal
}

// Unauthorized constructs a KindUnauthorized error.
func Unauthorized(op, message string) *Error { return New(KindUnauthorized, op, message, nil) }

// Forbidden constructs a KindForbidden error.
func Forbidden(op, message string) *Error { return New(KindForbidden, op, message, nil) }

// NotFound constructs a KindNotFound error.
func NotFound(op, message string) *Error { return New(KindNotFound, op, message, nil) }

// Validation constructs a KindValidation error.
func Validation(op, message string) *Error { return New(KindValidation, op, message, nil) }

// Conflict constructs a KindConflict error, marked retryable by default.
func Conflict(op, message string) *Error {
	return New(KindConflict, op, message, nil).Retryable(true)
}

// TransientInfra constructs a KindTransientInfra error wrapping cause, marked
// retryable by default.
func TransientInfra(op string, cause error) *Error {
	return New(KindTransientInfra, op, "", cause).Retryable(true)
}

// RuntimeError constructs a KindRuntimeError error wrapping cause.
func RuntimeError(op string, cause error) *Error {
	return New(KindRuntimeError, op, "", cause)
}

// ClientClosed constructs a KindClientClosed error.
func ClientClosed(op string) *Error {
	return New(KindClientClosed, op, "client disconnected", nil)
}

// Internal constructs a KindInternal error wrapping cause.
func Internal(op string, cause error) *Error {
	return New(KindInternal, op, "", cause)
}
