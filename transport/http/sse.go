package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/agentgraph/engine/runtime/streamengine"
)

// sseSink adapts an http.ResponseWriter into a streamengine.Sink, writing
// one `data: <json>\n\n` line per envelope and flushing immediately so
// clients observe events as they are produced, not buffered.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

var _ streamengine.Sink = (*sseSink)(nil)

func newSSESink(w http.ResponseWriter) (*sseSink, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseSink{w: w, flusher: flusher}, true
}

func (s *sseSink) Send(ctx context.Context, env streamengine.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.writeData(raw)
}

func (s *sseSink) Close(ctx context.Context) error { return nil }

// writeData writes one SSE `data: <raw>\n\n` line and flushes immediately.
// Shared by Send and any other caller (e.g. the notify stream handler) that
// writes a different JSON payload over the same connection.
func (s *sseSink) writeData(raw []byte) error {
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(raw); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
