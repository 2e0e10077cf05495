// Package graphruntime defines the interface the conversation engine depends
// on to drive a single compiled graph through one turn. Compilation and node
// dispatch are external to this package: a GraphRuntime is handed to the
// engine fully built, already bound to its node/edge tables and LLM
// parameters, by whatever compiles graphs (see runtime/graphruntime/builtin
// for the default single-node implementation).
package graphruntime

import (
	"context"
	"strings"

	"github.com/agentgraph/engine/runtime/checkpoint"
)

type (
	// Input is the turn-scoped input driving a fresh run: the conversation
	// history to feed the graph and any resolved context variables.
	Input struct {
		Messages []Message
		Context  map[string]any
	}

	// Message is the minimal shape GraphRuntime implementations need from the
	// conversation history; it intentionally does not depend on the
	// persistence model package to keep this interface boundary narrow.
	// ToolCalls is populated on assistant messages that invoked tools, so
	// ConversationStore.AppendAssistantMessage can persist it as message
	// metadata without the runtime knowing anything about persistence.
	Message struct {
		Role      string
		Content   string
		ToolCalls []ToolCall
	}

	// ToolCall records one tool invocation an assistant message made.
	ToolCall struct {
		ID        string
		Name      string
		Arguments map[string]any
	}

	// Command resumes a suspended graph. Update and Goto may both be absent,
	// in which case the runtime resumes from the checkpointed state
	// unmodified.
	Command struct {
		Update map[string]any
		Goto   string
	}

	// Config identifies which compiled graph instance and thread a call
	// applies to. Opaque to the engine beyond being passed through to the
	// runtime and the checkpoint reader.
	Config struct {
		GraphID  string
		ThreadID string
	}

	// Runtime is a compiled graph ready to execute or resume one turn.
	// Implementations lazily produce events as the graph executes; callers
	// drain the returned channel until it is closed (possibly early, on
	// context cancellation).
	Runtime interface {
		// StreamEvents begins a fresh run and returns a channel of events as
		// they occur. The channel is closed when the run completes, the
		// graph suspends at an interrupt, or ctx is cancelled.
		StreamEvents(ctx context.Context, input Input, cfg Config) (<-chan Event, error)

		// Resume continues a previously suspended run from its checkpointed
		// state, applying cmd. Same channel contract as StreamEvents.
		Resume(ctx context.Context, cmd Command, cfg Config) (<-chan Event, error)

		// GetState returns the current checkpoint snapshot for cfg. Used by
		// the engine's interrupt-detection path; implementations typically
		// delegate to the same store backing checkpoint.Reader.
		GetState(ctx context.Context, cfg Config) (checkpoint.Snapshot, error)

		// Cleanup releases any process-wide resources the runtime holds
		// (containerized tool backends, connections). Best-effort: callers
		// invoke it after every run regardless of outcome and ignore errors
		// beyond logging them.
		Cleanup(ctx context.Context) error
	}

	// EventType enumerates the raw event taxonomy a Runtime emits. These are
	// internal to the engine's event loop; streamengine classifies and
	// re-encodes them into the stable wire envelope types.
	EventType string

	// Event is a single item from a Runtime's event stream. Node-lifecycle
	// events (ChainStart/ChainEnd) are only meaningful when IsNodeEvent
	// reports true; the engine ignores chain events that don't classify as
	// node boundaries.
	Event struct {
		Type EventType
		// Name is the implementation-reported event name (node name, tool
		// name, or model call label depending on Type).
		Name string
		// Node is the node this event is scoped to, when known. Populated
		// from metadata.langgraph_node when the runtime's event carried it.
		Node string
		// Tags carries implementation-specific routing tags. streamengine
		// does not copy them onto the envelopes it sends.
		Tags []string
		// Data carries the event-specific payload: input/output for
		// chat_model and tool events, the partial message list for
		// chain_end.
		Data EventData
	}

	// EventData carries the event-specific payload fields referenced by the
	// stream loop. Fields are populated according to Event.Type; unused
	// fields are left at their zero value.
	EventData struct {
		// Delta is the incremental content fragment for chat_model_stream.
		Delta string
		// Input is the tool or model call input for *_start events.
		Input map[string]any
		// Output is the tool or model call output for *_end events.
		Output map[string]any
		// ToolCallID identifies the tool invocation for tool_start/tool_end.
		ToolCallID string
		// Messages is the full message list as of a chain_end event, used as
		// a fallback source of truth if the event loop exits early.
		Messages []Message
		// Err is set on failed tool or model calls.
		Err error
	}
)

const (
	EventChatModelStart  EventType = "chat_model_start"
	EventChatModelStream EventType = "chat_model_stream"
	EventChatModelEnd    EventType = "chat_model_end"
	EventToolStart       EventType = "tool_start"
	EventToolEnd         EventType = "tool_end"
	EventChainStart      EventType = "chain_start"
	EventChainEnd        EventType = "chain_end"
)

// IsNodeEvent classifies a chain event as a node-lifecycle boundary. A chain
// event counts as a node event when it carries an explicit node name, or
// when its event name mentions "node" without also mentioning "tool",
// "model", "llm", or "chat" (the heuristic the runtime uses when the
// compiled graph doesn't tag metadata.langgraph_node explicitly).
func (e Event) IsNodeEvent() bool {
	if e.Type != EventChainStart && e.Type != EventChainEnd {
		return false
	}
	if e.Node != "" {
		return true
	}
	name := strings.ToLower(e.Name)
	if !strings.Contains(name, "node") {
		return false
	}
	for _, excluded := range []string{"tool", "model", "llm", "chat"} {
		if strings.Contains(name, excluded) {
			return false
		}
	}
	return true
}
