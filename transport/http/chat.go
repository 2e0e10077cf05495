package http

import (
	"encoding/json"
	"net/http"

	"github.com/agentgraph/engine/apierror"
	"github.com/agentgraph/engine/runtime/graph"
	"github.com/agentgraph/engine/runtime/graphruntime"
	"github.com/agentgraph/engine/runtime/streamengine"
)

type llmParamsBody struct {
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

func (b llmParamsBody) toDomain() graph.LLMParams {
	return graph.LLMParams{
		Model: b.Model, SystemPrompt: b.SystemPrompt, MaxTokens: b.MaxTokens, Temperature: b.Temperature,
	}
}

type chatStreamRequest struct {
	Message   string        `json:"message"`
	ThreadID  string        `json:"thread_id,omitempty"`
	GraphID   string        `json:"graph_id,omitempty"`
	LLMParams llmParamsBody `json:"llm_params,omitempty"`
}

// handleChatStream serves POST /v1/chat/stream.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var body chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierror.Validation("transport.chat_stream", "invalid request body"))
		return
	}
	caller := callerFromRequest(r)
	if caller.UserID == "" {
		writeError(w, apierror.Unauthorized("transport.chat_stream", "missing caller identity"))
		return
	}

	sink, ok := newSSESink(w)
	if !ok {
		writeError(w, apierror.Internal("transport.chat_stream", errStreamingUnsupported))
		return
	}

	req := streamengine.NewTurnRequest{
		ThreadID:    body.ThreadID,
		Owner:       caller.UserID,
		Caller:      caller,
		GraphID:     body.GraphID,
		LLMParams:   body.LLMParams.toDomain(),
		UserMessage: body.Message,
	}
	if err := s.engine.StreamNewTurn(r.Context(), req, sink); err != nil {
		s.logger.Warn(r.Context(), "chat stream ended with error", "error", err)
	}
}

type chatResumeRequest struct {
	ThreadID string               `json:"thread_id"`
	Command  chatResumeCommandDTO `json:"command"`
}

type chatResumeCommandDTO struct {
	Update map[string]any `json:"update,omitempty"`
	Goto   string         `json:"goto,omitempty"`
}

// handleChatResume serves POST /v1/chat/resume.
func (s *Server) handleChatResume(w http.ResponseWriter, r *http.Request) {
	var body chatResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierror.Validation("transport.chat_resume", "invalid request body"))
		return
	}
	caller := callerFromRequest(r)
	if caller.UserID == "" {
		writeError(w, apierror.Unauthorized("transport.chat_resume", "missing caller identity"))
		return
	}
	if body.ThreadID == "" {
		writeError(w, apierror.Validation("transport.chat_resume", "thread_id is required"))
		return
	}

	sink, ok := newSSESink(w)
	if !ok {
		writeError(w, apierror.Internal("transport.chat_resume", errStreamingUnsupported))
		return
	}

	req := streamengine.ResumeRequest{
		ThreadID: body.ThreadID,
		Caller:   caller,
		Command:  graphruntime.Command{Update: body.Command.Update, Goto: body.Command.Goto},
	}
	if err := s.engine.ResumeTurn(r.Context(), req, sink); err != nil {
		s.logger.Warn(r.Context(), "chat resume ended with error", "error", err)
	}
}

type chatStopRequest struct {
	ThreadID string `json:"thread_id"`
}

type chatStopResponse struct {
	Status    string `json:"status"`
	Cancelled bool   `json:"cancelled"`
}

// handleChatStop serves POST /v1/chat/stop.
func (s *Server) handleChatStop(w http.ResponseWriter, r *http.Request) {
	var body chatStopRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierror.Validation("transport.chat_stop", "invalid request body"))
		return
	}
	// Stop sets the cooperative flag so the loop exits cleanly between
	// events; ForceCancel follows immediately to abort a run blocked
	// inside the runtime's own blocking call (e.g. a streaming LLM
	// request), per the flag-then-cancel contract.
	stopped := s.engine.Stop(body.ThreadID)
	if stopped {
		s.engine.ForceCancel(body.ThreadID)
	}

	resp := chatStopResponse{Cancelled: stopped}
	if stopped {
		resp.Status = "stopped"
	} else {
		resp.Status = "not_running"
	}
	writeJSON(w, http.StatusOK, resp)
}
