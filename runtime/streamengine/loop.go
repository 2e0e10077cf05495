package streamengine

import (
	"context"
	"strings"
	"time"

	"github.com/agentgraph/engine/apierror"
	"github.com/agentgraph/engine/runtime/agent/toolerrors"
	"github.com/agentgraph/engine/runtime/checkpoint"
	"github.com/agentgraph/engine/runtime/graphruntime"
)

const interruptDetectTimeout = 5 * time.Second

// startFunc begins the run once the caller's TaskManager handle exists and
// the "connected"/"resumed" status envelope has already been sent. It is
// StreamEvents for a fresh turn, Resume for a resumed one; both return the
// same event-channel contract so the rest of runTurn never needs to know
// which path it is on.
type startFunc func(runCtx context.Context) (<-chan graphruntime.Event, error)

// runTurn implements the event loop, interrupt detection, completion
// signaling, and persistence guarantee shared by StreamNewTurn and
// ResumeTurn. It registers threadID with the task manager before the status
// envelope is sent, so a Stop call issued as soon as the client sees that
// envelope finds a handle to act on. The handle is unregistered before
// runTurn returns.
func (e *Engine) runTurn(
	ctx context.Context,
	threadID, graphID string,
	cfg graphruntime.Config,
	rt graphruntime.Runtime,
	sink Sink,
	connectStatus string,
	start startFunc,
) error {
	runID := e.newRunID()
	runCtx, _ := e.tasks.Register(ctx, threadID)

	spanCtx, span := e.tracer.Start(runCtx, "streamengine.turn")
	runCtx = spanCtx
	started := time.Now()
	e.metrics.IncCounter("streamengine.turn_started", 1, "graph_id", graphID)
	defer func() {
		e.metrics.RecordTimer("streamengine.turn_duration", time.Since(started), "graph_id", graphID)
		span.End()
	}()

	var (
		allMessages  []graphruntime.Message
		contentBuf   strings.Builder
		interrupted  bool
		stopped      bool
		clientClosed bool
		runtimeErr   error
	)

	// Persistence guarantee: runs on every exit path, using a context
	// detached from ctx/runCtx since either may already be cancelled
	// (client disconnect, forced cancellation) by the time we get here.
	defer func() {
		e.tasks.Unregister(threadID)

		persistCtx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
		defer cancel()

		msgs := allMessages
		if len(msgs) == 0 && contentBuf.Len() > 0 {
			msgs = []graphruntime.Message{{Role: "assistant", Content: contentBuf.String()}}
		}
		if len(msgs) > 0 {
			if _, err := e.conversations.AppendAssistantMessage(persistCtx, threadID, msgs); err != nil {
				e.logger.Warn(persistCtx, "streamengine: persist assistant message failed",
					"thread_id", threadID, "error", err)
			}
		}

		if err := rt.Cleanup(persistCtx); err != nil {
			e.logger.Warn(persistCtx, "streamengine: runtime cleanup failed",
				"thread_id", threadID, "error", err)
		}

		if interrupted {
			if err := e.conversations.SetInterruptMarker(persistCtx, threadID, graphID); err != nil {
				e.logger.Warn(persistCtx, "streamengine: set interrupt marker failed",
					"thread_id", threadID, "error", err)
			}
		} else if err := e.conversations.ClearInterruptMarker(persistCtx, threadID); err != nil {
			e.logger.Warn(persistCtx, "streamengine: clear interrupt marker failed",
				"thread_id", threadID, "error", err)
		}
	}()

	if err := sendEnvelope(ctx, sink, threadID, runID, "", EnvelopeStatus, StatusData{Status: connectStatus}); err != nil {
		return apierror.ClientClosed("streamengine.connect")
	}

	events, err := start(runCtx)
	if err != nil {
		_ = sendEnvelope(ctx, sink, threadID, runID, "", EnvelopeError, ErrorData{Message: err.Error(), Code: ErrorCodeInternal})
		return apierror.RuntimeError("streamengine.start", err)
	}

eventLoop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break eventLoop
			}
			if e.tasks.IsStopped(threadID) {
				stopped = true
				break eventLoop
			}
			if sendErr := e.dispatch(ctx, sink, threadID, runID, ev, &allMessages, &contentBuf); sendErr != nil {
				clientClosed = true
				break eventLoop
			}
			if ev.Data.Err != nil {
				runtimeErr = ev.Data.Err
			}
		case <-runCtx.Done():
			if e.tasks.IsStopped(threadID) {
				stopped = true
			} else {
				clientClosed = true
			}
			break eventLoop
		}
	}

	if !clientClosed {
		interrupted, allMessages = e.detectInterrupt(ctx, sink, threadID, runID, graphID, cfg, rt, allMessages)
	}

	switch {
	case clientClosed:
		return apierror.ClientClosed("streamengine.stream")
	case interrupted:
		return nil
	case stopped:
		return sendEnvelope(ctx, sink, threadID, runID, "", EnvelopeError, ErrorData{Message: "stream stopped by caller", Code: ErrorCodeStopped})
	case runtimeErr != nil:
		span.RecordError(runtimeErr)
		e.metrics.IncCounter("streamengine.turn_failed", 1, "graph_id", graphID)
		toolErr := toolerrors.FromError(runtimeErr)
		_ = sendEnvelope(ctx, sink, threadID, runID, "", EnvelopeError,
			ErrorData{Message: runtimeErr.Error(), Code: ErrorCodeInternal, Retryable: toolErr.Retryable})
		return apierror.RuntimeError("streamengine.stream", runtimeErr)
	default:
		return sendEnvelope(ctx, sink, threadID, runID, "", EnvelopeDone, DoneData{})
	}
}

// dispatch classifies one graphruntime.Event, forwards it to sink as the
// corresponding envelope, and updates allMessages/contentBuf as a side
// effect so the persistence guarantee has something to save even if the
// loop exits before a clean chain_end.
func (e *Engine) dispatch(
	ctx context.Context, sink Sink, threadID, runID string, ev graphruntime.Event,
	allMessages *[]graphruntime.Message, contentBuf *strings.Builder,
) error {
	switch ev.Type {
	case graphruntime.EventChatModelStream:
		contentBuf.WriteString(ev.Data.Delta)
		return sendEnvelope(ctx, sink, threadID, runID, ev.Node, EnvelopeContent, ContentData{Delta: ev.Data.Delta})
	case graphruntime.EventChatModelStart:
		return sendEnvelope(ctx, sink, threadID, runID, ev.Node, EnvelopeChatModelStart, NodeData{NodeName: ev.Node, NodeLabel: ev.Name})
	case graphruntime.EventChatModelEnd:
		return sendEnvelope(ctx, sink, threadID, runID, ev.Node, EnvelopeChatModelEnd, NodeData{NodeName: ev.Node, NodeLabel: ev.Name})
	case graphruntime.EventToolStart:
		return sendEnvelope(ctx, sink, threadID, runID, ev.Node, EnvelopeToolStart, ToolStartData{Tool: ev.Name, Input: ev.Data.Input})
	case graphruntime.EventToolEnd:
		return sendEnvelope(ctx, sink, threadID, runID, ev.Node, EnvelopeToolEnd, ToolEndData{Tool: ev.Name, Output: ev.Data.Output})
	case graphruntime.EventChainStart, graphruntime.EventChainEnd:
		if !ev.IsNodeEvent() {
			return nil
		}
		if ev.Type == graphruntime.EventChainEnd && len(ev.Data.Messages) > 0 {
			*allMessages = ev.Data.Messages
		}
		typ := EnvelopeNodeStart
		if ev.Type == graphruntime.EventChainEnd {
			typ = EnvelopeNodeEnd
		}
		return sendEnvelope(ctx, sink, threadID, runID, ev.Node, typ, NodeData{NodeName: ev.Node, NodeLabel: ev.Name})
	default:
		return nil
	}
}

// detectInterrupt reads the checkpoint once a run's event channel has
// closed, via a context detached from ctx (already possibly cancelled) with
// its own short timeout. If the graph suspended, it emits the interrupt
// envelope and, when the event loop never saw a chain_end carrying
// messages, issues one more short-lived get_state attempt to recover the
// message list the persistence guarantee needs.
func (e *Engine) detectInterrupt(
	ctx context.Context, sink Sink, threadID, runID, graphID string,
	cfg graphruntime.Config, rt graphruntime.Runtime, allMessages []graphruntime.Message,
) (bool, []graphruntime.Message) {
	detectCtx, cancel := context.WithTimeout(context.Background(), interruptDetectTimeout)
	defer cancel()

	reader := runtimeStateReader{rt: rt, cfg: cfg}
	store := checkpoint.New(reader, e.logger)
	snap, ok := store.GetStateOrDegrade(detectCtx, graphID, threadID)
	if !ok || !snap.HasInterrupt() {
		return false, allMessages
	}

	pending := snap.Tasks[0]
	_ = sendEnvelope(ctx, sink, threadID, runID, pending.Name, EnvelopeInterrupt, InterruptData{
		NodeName: pending.Name,
		State:    snap.Values,
		ThreadID: threadID,
	})

	if len(allMessages) == 0 {
		shortStore := checkpoint.New(reader, e.logger, checkpoint.WithMaxAttempts(2), checkpoint.WithInitialBackoff(50*time.Millisecond))
		if snap2, ok2 := shortStore.GetStateOrDegrade(detectCtx, graphID, threadID); ok2 {
			allMessages = messagesFromValues(snap2.Values)
		}
	}
	return true, allMessages
}

// runtimeStateReader adapts a graphruntime.Runtime's GetState (keyed by a
// typed Config) to checkpoint.Reader's (graphID, config string) contract,
// so the engine can reuse checkpoint.Store's retry-and-degrade policy for
// interrupt detection without a GraphRuntime depending on the checkpoint
// package's Reader interface directly.
type runtimeStateReader struct {
	rt  graphruntime.Runtime
	cfg graphruntime.Config
}

func (r runtimeStateReader) GetState(ctx context.Context, _, _ string) (checkpoint.Snapshot, error) {
	return r.rt.GetState(ctx, r.cfg)
}

func sendEnvelope(ctx context.Context, sink Sink, threadID, runID, nodeName string, typ EnvelopeType, data any) error {
	return sink.Send(ctx, Envelope{
		Type:      typ,
		ThreadID:  threadID,
		RunID:     runID,
		NodeName:  nodeName,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
}

// messagesFromValues extracts a message list a GraphRuntime implementation
// may have stashed under the conventional "messages" key of its checkpoint
// values, tolerating both a native []graphruntime.Message (in-process
// runtimes) and a generic []any of string-keyed maps (runtimes that
// round-trip checkpoint state through JSON).
func messagesFromValues(values map[string]any) []graphruntime.Message {
	raw, ok := values["messages"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []graphruntime.Message:
		return v
	case []any:
		out := make([]graphruntime.Message, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			out = append(out, graphruntime.Message{Role: role, Content: content})
		}
		return out
	default:
		return nil
	}
}
