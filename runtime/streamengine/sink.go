package streamengine

import "context"

// Sink delivers envelopes to a client over a transport (SSE, WebSocket). The
// engine calls Send once per envelope in event order and never concurrently
// for the same turn, so implementations need not be reentrant across a
// single turn, only safe to construct fresh per turn.
type Sink interface {
	// Send publishes env to the sink's underlying transport. An error aborts
	// the turn: the engine treats it the same as a client disconnect
	// (apierror.ClientClosed), running the persistence guarantee and
	// returning without emitting further envelopes.
	Send(ctx context.Context, env Envelope) error

	// Close releases resources the sink owns (flush buffers, close the
	// underlying connection). Idempotent. The engine never calls Close;
	// whoever constructed the sink decides when to close it.
	Close(ctx context.Context) error
}
