package copilot

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentgraph/engine/apierror"
)

// Service is the read/submit side of the copilot secondary path. The
// long-running producer itself (the multi-stage analysis -> design ->
// validation -> code job) is out of this package's scope: it is handed a
// session id and a Store and drives AppendContent/Complete/Fail directly.
type Service struct {
	store Store
}

// NewService constructs a Service over store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Submit issues a new session id and marks it generating. Returns
// apierror.Internal wrapping ErrUnavailable if the KV cannot be reached, per
// the availability contract: this path fails fast rather than starting a
// job whose status can never be observed.
func (s *Service) Submit(ctx context.Context) (string, error) {
	sessionID := uuid.NewString()
	if err := s.store.Create(ctx, sessionID); err != nil {
		return "", apierror.Internal("copilot.submit", err)
	}
	return sessionID, nil
}

// GetState returns a session's current status and accumulated content.
// Returns apierror.NotFound if the session expired or never existed, and
// apierror.Internal wrapping ErrUnavailable if the KV cannot be reached.
func (s *Service) GetState(ctx context.Context, sessionID string) (State, error) {
	state, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if err == ErrNotFound {
			return State{}, apierror.NotFound("copilot.get_state", "session not found")
		}
		return State{}, apierror.Internal("copilot.get_state", err)
	}
	return state, nil
}
