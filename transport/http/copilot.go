package http

import (
	"net/http"

	"github.com/agentgraph/engine/apierror"
)

type copilotSubmitResponse struct {
	SessionID string `json:"session_id"`
}

// handleCopilotSubmit serves POST /v1/copilot/sessions. It only opens a
// session; the multi-stage generation producer is an external actor that
// drives the session to completion via runtime/copilot's Store directly.
func (s *Server) handleCopilotSubmit(w http.ResponseWriter, r *http.Request) {
	if s.copilot == nil {
		writeError(w, apierror.Internal("transport.copilot_submit", errCopilotUnconfigured))
		return
	}
	sessionID, err := s.copilot.Submit(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, copilotSubmitResponse{SessionID: sessionID})
}

type copilotStateResponse struct {
	Status  string `json:"status"`
	Content string `json:"content"`
}

// handleCopilotGetState serves GET /v1/copilot/sessions/{session_id}, the
// status-polling counterpart to the notify bus's push channel.
func (s *Server) handleCopilotGetState(w http.ResponseWriter, r *http.Request) {
	if s.copilot == nil {
		writeError(w, apierror.Internal("transport.copilot_get_state", errCopilotUnconfigured))
		return
	}
	sessionID := r.PathValue("session_id")
	state, err := s.copilot.GetState(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, copilotStateResponse{Status: string(state.Status), Content: state.Content})
}
