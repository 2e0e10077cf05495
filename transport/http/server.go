// Package http hand-wires the core's HTTP surface: the chat turn endpoints
// of §6.2 and the deployment-version endpoints of §4.7. Routing uses
// net/http.ServeMux's method-and-wildcard patterns directly rather than
// goa-generated transport code, since code generation is not invoked; the
// graceful-shutdown and request-logging shape otherwise follows the
// teacher's handleHTTPServer.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"goa.design/clue/log"

	"github.com/agentgraph/engine/runtime/agent/telemetry"
	"github.com/agentgraph/engine/runtime/copilot"
	"github.com/agentgraph/engine/runtime/deployment"
	"github.com/agentgraph/engine/runtime/notify"
	"github.com/agentgraph/engine/runtime/streamengine"
)

var errStreamingUnsupported = errors.New("response writer does not support streaming")
var errCopilotUnconfigured = errors.New("copilot service is not configured on this server")
var errNotifyUnconfigured = errors.New("notification bus is not configured on this server")

// Server bundles the services the HTTP surface fronts.
type Server struct {
	engine     *streamengine.Engine
	deployment *deployment.Service
	copilot    *copilot.Service
	notify     notify.Bus
	logger     telemetry.Logger
}

// NewServer constructs a Server. logger may be nil, in which case logging is
// a no-op. copilotSvc and notifyBus may be nil, in which case their routes
// respond apierror.Internal rather than panicking.
func NewServer(engine *streamengine.Engine, deploymentSvc *deployment.Service, copilotSvc *copilot.Service, notifyBus notify.Bus, logger telemetry.Logger) *Server {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Server{engine: engine, deployment: deploymentSvc, copilot: copilotSvc, notify: notifyBus, logger: logger}
}

// Mux builds the request multiplexer for every route this package serves.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /v1/chat/resume", s.handleChatResume)
	mux.HandleFunc("POST /v1/chat/stop", s.handleChatStop)

	mux.HandleFunc("POST /v1/graphs/{graph_id}/deployments", s.handleDeploy)
	mux.HandleFunc("DELETE /v1/graphs/{graph_id}/deployments", s.handleUndeploy)
	mux.HandleFunc("GET /v1/graphs/{graph_id}/deployments/status", s.handleDeploymentStatus)
	mux.HandleFunc("GET /v1/graphs/{graph_id}/deployments", s.handleListVersions)
	mux.HandleFunc("GET /v1/graphs/{graph_id}/deployments/{version}", s.handleGetVersion)
	mux.HandleFunc("GET /v1/graphs/{graph_id}/deployments/{version}/state", s.handleGetVersionState)
	mux.HandleFunc("PATCH /v1/graphs/{graph_id}/deployments/{version}", s.handleRenameVersion)
	mux.HandleFunc("POST /v1/graphs/{graph_id}/deployments/{version}/activate", s.handleActivateVersion)
	mux.HandleFunc("POST /v1/graphs/{graph_id}/deployments/{version}/revert", s.handleRevertToVersion)
	mux.HandleFunc("DELETE /v1/graphs/{graph_id}/deployments/{version}", s.handleDeleteVersion)

	mux.HandleFunc("POST /v1/copilot/sessions", s.handleCopilotSubmit)
	mux.HandleFunc("GET /v1/copilot/sessions/{session_id}", s.handleCopilotGetState)

	mux.HandleFunc("GET /v1/notify/stream", s.handleNotifyStream)

	return mux
}

// ListenAndServe starts an HTTP server on addr and blocks until ctx is
// cancelled, at which point it shuts down gracefully within the given
// timeout. Mirrors the graceful-shutdown goroutine shape of the teacher's
// cmd/assistant http.go, adapted to run synchronously for a single caller
// rather than signalling a shared error channel and WaitGroup.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	handler := log.HTTP(ctx)(s.Mux())
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 60 * time.Second}

	var wg sync.WaitGroup
	wg.Add(1)
	serveErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		log.Printf(ctx, "HTTP server listening on %q", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf(ctx, "failed to shutdown: %v", err)
		}
		wg.Wait()
		return nil
	case err := <-serveErr:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
