// Package streamengine drives one conversation turn through a compiled
// graph and translates its internal event stream into the stable SSE
// envelope contract external clients consume. It is the glue between
// graph.Resolver (which produces a ready-to-run graphruntime.Runtime),
// conversation.Store (which persists the turn), task.Manager (which tracks
// the in-flight run for cooperative stop), and checkpoint.Store (which
// detects whether a turn suspended at an interrupt).
package streamengine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentgraph/engine/apierror"
	"github.com/agentgraph/engine/runtime/agent/telemetry"
	"github.com/agentgraph/engine/runtime/conversation"
	"github.com/agentgraph/engine/runtime/graph"
	"github.com/agentgraph/engine/runtime/graphruntime"
	"github.com/agentgraph/engine/runtime/task"
)

const defaultPersistTimeout = 10 * time.Second

type (
	// NewTurnRequest starts a fresh turn: a new or existing conversation
	// receives one user message and is driven through graphID (or the
	// builtin fallback, if empty).
	NewTurnRequest struct {
		ThreadID    string
		Owner       string
		Caller      graph.Caller
		GraphID     string
		LLMParams   graph.LLMParams
		UserMessage string
	}

	// ResumeRequest continues a conversation previously suspended at an
	// interrupt. The graph to resume is read from the conversation's own
	// interrupt marker, not supplied by the caller, so a client can never
	// resume against a graph it didn't actually suspend on.
	ResumeRequest struct {
		ThreadID  string
		Caller    graph.Caller
		LLMParams graph.LLMParams
		Command   graphruntime.Command
	}

	// Engine implements StreamNewTurn and ResumeTurn: the C6 conversation
	// turn driver. A single Engine is shared across all conversations;
	// per-turn state lives entirely on the stack of the method call plus
	// the task.Manager's registry.
	Engine struct {
		tasks         *task.Manager
		conversations conversation.Store
		resolver      *graph.Resolver
		logger        telemetry.Logger
		metrics       telemetry.Metrics
		tracer        telemetry.Tracer

		newRunID       func() string
		persistTimeout time.Duration
	}
)

// New constructs an Engine. logger may be nil, in which case logging is a
// no-op. Metrics and tracing default to no-ops until SetMetrics/SetTracer
// install production implementations.
func New(tasks *task.Manager, conversations conversation.Store, resolver *graph.Resolver, logger telemetry.Logger) *Engine {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Engine{
		tasks:          tasks,
		conversations:  conversations,
		resolver:       resolver,
		logger:         logger,
		metrics:        telemetry.NewNoopMetrics(),
		tracer:         telemetry.NewNoopTracer(),
		newRunID:       func() string { return uuid.NewString() },
		persistTimeout: defaultPersistTimeout,
	}
}

// SetMetrics installs the Metrics recorder used for per-turn counters and
// timers. Passing nil restores the no-op recorder.
func (e *Engine) SetMetrics(metrics telemetry.Metrics) {
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	e.metrics = metrics
}

// SetTracer installs the Tracer used to span each turn. Passing nil restores
// the no-op tracer.
func (e *Engine) SetTracer(tracer telemetry.Tracer) {
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	e.tracer = tracer
}

// StreamNewTurn drives a fresh turn: it gets-or-creates the conversation,
// appends the user message, resolves the graph, and streams the run to
// sink until it completes, suspends at an interrupt, is stopped, or the
// client disconnects. The persistence guarantee (message append, runtime
// cleanup, interrupt marker) always runs before this method returns,
// regardless of which of those four outcomes occurred.
func (e *Engine) StreamNewTurn(ctx context.Context, req NewTurnRequest, sink Sink) error {
	threadID, _, err := e.conversations.GetOrCreate(ctx, req.ThreadID, req.Owner, req.UserMessage, nil)
	if err != nil {
		return err
	}
	// Appended before streaming begins so the user's own message is never
	// lost even if resolution or the run itself fails immediately after.
	if err := e.conversations.AppendUserMessage(ctx, threadID, req.UserMessage, nil); err != nil {
		return err
	}

	resolved, err := e.resolver.Resolve(ctx, req.GraphID, req.Caller, req.LLMParams)
	if err != nil {
		return err
	}

	history, err := e.conversations.ListMessages(ctx, threadID)
	if err != nil {
		return err
	}
	input := graphruntime.Input{Messages: toRuntimeMessages(history), Context: resolved.Context}
	cfg := graphruntime.Config{GraphID: req.GraphID, ThreadID: threadID}

	return e.runTurn(ctx, threadID, req.GraphID, cfg, resolved.Runtime, sink, StatusConnected,
		func(runCtx context.Context) (<-chan graphruntime.Event, error) {
			return resolved.Runtime.StreamEvents(runCtx, input, cfg)
		})
}

// ResumeTurn continues a conversation suspended at an interrupt. The graph
// id is read from the conversation's own interrupt marker; ResumeTurn
// fails with apierror.NotFound if the conversation carries no marker, or
// if the checkpoint no longer shows a pending task (the execution expired
// or was already resumed by a concurrent call).
func (e *Engine) ResumeTurn(ctx context.Context, req ResumeRequest, sink Sink) error {
	conv, err := e.conversations.GetConversation(ctx, req.ThreadID)
	if err != nil {
		return err
	}
	graphID, ok := conv.InterruptedGraphID()
	if !ok {
		return apierror.NotFound("streamengine.resume", "conversation is not suspended at an interrupt")
	}

	resolved, err := e.resolver.Resolve(ctx, graphID, req.Caller, req.LLMParams)
	if err != nil {
		return err
	}
	cfg := graphruntime.Config{GraphID: graphID, ThreadID: req.ThreadID}

	snap, err := resolved.Runtime.GetState(ctx, cfg)
	if err != nil {
		return apierror.Internal("streamengine.resume", err)
	}
	if !snap.HasInterrupt() {
		return apierror.NotFound("streamengine.resume", "execution may have expired")
	}

	return e.runTurn(ctx, req.ThreadID, graphID, cfg, resolved.Runtime, sink, StatusResumed,
		func(runCtx context.Context) (<-chan graphruntime.Event, error) {
			return resolved.Runtime.Resume(runCtx, req.Command, cfg)
		})
}

// Stop requests a cooperative stop of the run registered for threadID. The
// engine observes the flag between events and exits within one event,
// persisting whatever the run produced so far. Returns false if no run is
// currently registered for threadID.
func (e *Engine) Stop(threadID string) bool {
	return e.tasks.Stop(threadID)
}

// ForceCancel forcibly cancels the run registered for threadID, aborting
// any blocking I/O inside the runtime. The HTTP stop handler calls it right
// after a successful Stop; because the stop flag is already set, the event
// loop reports the cancelled run as stopped rather than as a client
// disconnect.
func (e *Engine) ForceCancel(threadID string) bool {
	return e.tasks.Cancel(threadID)
}

func toRuntimeMessages(msgs []conversation.Message) []graphruntime.Message {
	out := make([]graphruntime.Message, len(msgs))
	for i, m := range msgs {
		out[i] = graphruntime.Message{Role: m.Role, Content: m.Content, ToolCalls: m.ToolCalls}
	}
	return out
}
