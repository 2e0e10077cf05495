// Package copilot implements the secondary async job path for multi-stage
// graph generation (analysis -> design -> validation -> code): a session id
// issued on submit, status and accumulated content written to an external
// TTL'd KV by the long-running producer, and a read side that the API
// endpoint polls or streams from. Unlike the conversation turn path, this is
// not a live graph execution: it is a generation job whose state lives
// entirely in the KV until it expires.
package copilot

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a copilot session.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultTTL is the KV expiry applied to a session's keys, matching the
// secondary-path availability contract: sessions are ephemeral, and history
// beyond the TTL falls back to durable storage outside this package.
const DefaultTTL = 24 * time.Hour

// ErrUnavailable is returned by every Store method when the backing KV
// cannot be reached. Callers MUST fail fast rather than degrade: a copilot
// session endpoint has no consistent fallback once its KV is unreachable.
var ErrUnavailable = errors.New("copilot: session store unavailable")

// ErrNotFound is returned when a session id has no status key, either
// because it was never created or its TTL expired.
var ErrNotFound = errors.New("copilot: session not found")

// State is a session's current status plus whatever content has
// accumulated so far.
type State struct {
	Status  Status
	Content string
}

// Store persists copilot session status and accumulated content in an
// external KV under the key scheme
// copilot:session:{id}:status / copilot:session:{id}:content, both TTL'd.
type Store interface {
	// Create starts a session in the generating state with empty content.
	Create(ctx context.Context, sessionID string) error

	// AppendContent appends chunk to the session's accumulated content and
	// refreshes its TTL. Returns ErrNotFound if the session has expired or
	// never existed.
	AppendContent(ctx context.Context, sessionID, chunk string) error

	// Complete transitions the session to completed.
	Complete(ctx context.Context, sessionID string) error

	// Fail transitions the session to failed and records reason as the
	// session's final content so a caller reading status can surface why.
	Fail(ctx context.Context, sessionID, reason string) error

	// Get returns the session's current state. Returns ErrNotFound if the
	// session has expired or never existed.
	Get(ctx context.Context, sessionID string) (State, error)
}
