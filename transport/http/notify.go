package http

import (
	"encoding/json"
	"net/http"

	"github.com/agentgraph/engine/apierror"
)

// handleNotifyStream serves GET /v1/notify/stream, the push side of the
// cross-session NotificationBus (§4.9): another session/device publishes an
// event for the caller's user id, and every connected stream for that user
// receives it as an SSE line. There is no replay and no ack; a client that
// isn't connected when an event is published simply misses it.
func (s *Server) handleNotifyStream(w http.ResponseWriter, r *http.Request) {
	if s.notify == nil {
		writeError(w, apierror.Internal("transport.notify_stream", errNotifyUnconfigured))
		return
	}
	caller := callerFromRequest(r)
	if caller.UserID == "" {
		writeError(w, apierror.Unauthorized("transport.notify_stream", "missing caller identity"))
		return
	}

	events, cancel, err := s.notify.Subscribe(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	sink, ok := newSSESink(w)
	if !ok {
		writeError(w, apierror.Internal("transport.notify_stream", errStreamingUnsupported))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			raw, err := json.Marshal(event)
			if err != nil {
				s.logger.Warn(r.Context(), "failed to marshal notify event", "error", err)
				continue
			}
			if err := sink.writeData(raw); err != nil {
				return
			}
		}
	}
}
