package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentgraph/engine/runtime/checkpoint"
	"github.com/agentgraph/engine/runtime/conversation"
	"github.com/agentgraph/engine/runtime/copilot"
	"github.com/agentgraph/engine/runtime/deployment"
	"github.com/agentgraph/engine/runtime/graph"
	memorystore "github.com/agentgraph/engine/runtime/graph/store/memory"
	"github.com/agentgraph/engine/runtime/graphruntime"
	"github.com/agentgraph/engine/runtime/notify"
	"github.com/agentgraph/engine/runtime/streamengine"
	"github.com/agentgraph/engine/runtime/task"
)

type fakeRuntime struct{ events []graphruntime.Event }

func (f *fakeRuntime) StreamEvents(ctx context.Context, input graphruntime.Input, cfg graphruntime.Config) (<-chan graphruntime.Event, error) {
	ch := make(chan graphruntime.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}
func (f *fakeRuntime) Resume(ctx context.Context, cmd graphruntime.Command, cfg graphruntime.Config) (<-chan graphruntime.Event, error) {
	return f.StreamEvents(ctx, graphruntime.Input{}, cfg)
}
func (f *fakeRuntime) GetState(ctx context.Context, cfg graphruntime.Config) (checkpoint.Snapshot, error) {
	return checkpoint.Snapshot{}, nil
}
func (f *fakeRuntime) Cleanup(ctx context.Context) error { return nil }

type fakeBuiltin struct{ rt graphruntime.Runtime }

func (f fakeBuiltin) Builtin(graph.LLMParams) (graphruntime.Runtime, error) { return f.rt, nil }

type fakeCompiler struct{}

func (fakeCompiler) Compile(context.Context, *graph.Graph, []*graph.GraphNode, []*graph.GraphEdge, graph.LLMParams, string) (graphruntime.Runtime, error) {
	panic("not used")
}

func newTestServer(t *testing.T) (*Server, *memorystore.Store) {
	t.Helper()
	convStore := conversation.NewMemoryStore()
	rt := &fakeRuntime{
		events: []graphruntime.Event{
			{
				Type: graphruntime.EventChainEnd, Node: "respond",
				Data: graphruntime.EventData{Messages: []graphruntime.Message{
					{Role: "user", Content: "hi"},
					{Role: "assistant", Content: "hello there"},
				}},
			},
		},
	}
	resolver := graph.NewResolver(nil, fakeCompiler{}, fakeBuiltin{rt: rt})
	engine := streamengine.New(task.NewManager(), convStore, resolver, nil)

	graphs := memorystore.New()
	deploySvc := deployment.NewService(graphs, deployment.NewMemoryStore(), nil)
	copilotSvc := copilot.NewService(copilot.NewMemoryStore(copilot.DefaultTTL, nil))
	notifyBus := notify.NewMemoryBus(16)

	return NewServer(engine, deploySvc, copilotSvc, notifyBus, nil), graphs
}

func TestHandleChatStreamWritesSSEEnvelopes(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Mux()

	body := `{"message":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(body))
	req.Header.Set("X-User-Id", "owner-1")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	lines := readDataLines(t, rec.Body.Bytes())
	require.NotEmpty(t, lines)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "status", first["type"])

	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	require.Equal(t, "done", last["type"])
}

func TestHandleChatStreamRejectsMissingCaller(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Mux()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleChatStopReportsNotRunningForUnknownThread(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Mux()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stop", strings.NewReader(`{"thread_id":"missing"}`))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatStopResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "not_running", resp.Status)
	require.False(t, resp.Cancelled)
}

func TestDeployThenListThenGetVersionRoundTrip(t *testing.T) {
	srv, graphs := newTestServer(t)
	mux := srv.Mux()

	require.NoError(t, graphs.SaveGraph(context.Background(), &graph.Graph{ID: "g1", Owner: "owner-1"}))
	graphs.SeedNodes("g1", &graph.GraphNode{ID: "n1", GraphID: "g1", Type: "agent", Prompt: "be helpful"})

	req := httptest.NewRequest(http.MethodPost, "/v1/graphs/g1/deployments", strings.NewReader(`{"name":"v1"}`))
	req.SetPathValue("graph_id", "g1")
	req.Header.Set("X-User-Id", "owner-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var deployed deployResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deployed))
	require.Equal(t, 1, deployed.Version)
	require.True(t, deployed.IsActive)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/graphs/g1/deployments", nil)
	listReq.SetPathValue("graph_id", "g1")
	listReq.Header.Set("X-User-Id", "owner-1")
	listRec := httptest.NewRecorder()
	mux.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var page listVersionsResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &page))
	require.Len(t, page.Versions, 1)
	require.Equal(t, 1, page.Total)
}

func readDataLines(t *testing.T, body []byte) []string {
	t.Helper()
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			lines = append(lines, strings.TrimPrefix(line, "data: "))
		}
	}
	return lines
}

func TestListVersionsUnauthorizedWithoutView(t *testing.T) {
	srv, graphs := newTestServer(t)
	mux := srv.Mux()
	require.NoError(t, graphs.SaveGraph(context.Background(), &graph.Graph{ID: "g2", Owner: "owner-1"}))

	req := httptest.NewRequest(http.MethodGet, "/v1/graphs/g2/deployments", nil)
	req.SetPathValue("graph_id", "g2")
	req.Header.Set("X-User-Id", "stranger")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCopilotSubmitThenGetStateReportsGenerating(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Mux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/copilot/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var submitted copilotSubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.SessionID)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/copilot/sessions/"+submitted.SessionID, nil)
	getReq.SetPathValue("session_id", submitted.SessionID)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var state copilotStateResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &state))
	require.Equal(t, "generating", state.Status)
}

func TestCopilotGetStateNotFoundForUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Mux()

	req := httptest.NewRequest(http.MethodGet, "/v1/copilot/sessions/missing", nil)
	req.SetPathValue("session_id", "missing")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifyStreamRejectsMissingCaller(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Mux()

	req := httptest.NewRequest(http.MethodGet, "/v1/notify/stream", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
