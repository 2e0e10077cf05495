// Package checkpoint reads GraphRuntime-owned interrupt state. The store is
// opaque to the engine beyond a single read contract: the runtime itself
// owns writes, and the engine only ever reads to decide whether a turn
// suspended at an interrupt.
package checkpoint

import (
	"context"
	"math"
	"time"

	"github.com/agentgraph/engine/runtime/agent/telemetry"
)

type (
	// PendingTask describes one task the runtime is suspended on, awaiting an
	// externally supplied value before it can resume.
	PendingTask struct {
		// ID identifies the pending task within the graph's checkpoint.
		ID string
		// Name is the node or task name that triggered the interrupt.
		Name string
		// Payload carries implementation-specific interrupt data (e.g. the
		// tool-approval request or clarification prompt) surfaced to callers.
		Payload map[string]any
	}

	// Snapshot is the state of a graph's execution at a point in time.
	// A non-empty Tasks slice means the graph is suspended at an interrupt.
	Snapshot struct {
		Values map[string]any
		Tasks  []PendingTask
	}

	// Reader is the read-only contract the engine depends on. The
	// implementation (backed by whatever store the GraphRuntime persists
	// checkpoints to, typically Redis) owns the write path entirely; this
	// interface exists only so the engine can detect interrupts.
	Reader interface {
		GetState(ctx context.Context, graphID, config string) (Snapshot, error)
	}

	// Store wraps a Reader with the retry-and-degrade policy described by the
	// interrupt-detection contract: up to three attempts with exponential
	// backoff starting at 100ms, logging a warning and reporting "no
	// interrupt" rather than failing the caller's request when all attempts
	// are exhausted.
	Store struct {
		reader Reader
		logger telemetry.Logger

		maxAttempts    int
		initialBackoff time.Duration
		multiplier     float64
	}
)

// Option customizes a Store's retry policy away from its defaults.
type Option func(*Store)

// WithMaxAttempts overrides the default 3-attempt retry budget. Used by the
// stream engine's second, shorter-lived get_state attempt after the event
// loop exits with an empty all_messages (2 attempts instead of 3).
func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

// WithInitialBackoff overrides the default 100ms initial backoff. Used by
// the stream engine's second get_state attempt (50ms instead of 100ms).
func WithInitialBackoff(d time.Duration) Option {
	return func(s *Store) { s.initialBackoff = d }
}

// New constructs a Store wrapping reader with the default retry policy (3
// attempts, 100ms initial backoff, 2x multiplier), customizable via opts.
func New(reader Reader, logger telemetry.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	s := &Store{
		reader:         reader,
		logger:         logger,
		maxAttempts:    3,
		initialBackoff: 100 * time.Millisecond,
		multiplier:     2.0,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetStateOrDegrade reads the snapshot for graphID/config, retrying on
// failure. When every attempt fails it logs a warning and returns an empty
// Snapshot with ok=false rather than an error: interrupt detection degrades
// gracefully to "assume no interrupt" so a transient checkpoint-store outage
// never fails the caller's turn.
func (s *Store) GetStateOrDegrade(ctx context.Context, graphID, config string) (snap Snapshot, ok bool) {
	var lastErr error
	backoff := s.initialBackoff

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		snap, lastErr = s.reader.GetState(ctx, graphID, config)
		if lastErr == nil {
			return snap, true
		}

		if attempt >= s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = s.maxAttempts
		case <-time.After(backoff):
		}
		backoff = time.Duration(math.Min(
			float64(backoff)*s.multiplier,
			float64(s.initialBackoff)*math.Pow(s.multiplier, float64(s.maxAttempts)),
		))
	}

	s.logger.Warn(ctx, "checkpoint: interrupt detection degraded after retries",
		"graph_id", graphID, "error", lastErr)
	return Snapshot{}, false
}

// HasInterrupt reports whether the snapshot describes a suspended graph.
func (snap Snapshot) HasInterrupt() bool {
	return len(snap.Tasks) > 0
}
