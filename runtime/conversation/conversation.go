// Package conversation implements the ConversationStore: the per-thread
// append-only message log plus the small bit of conversation-level state
// (title, interrupt marker) the stream engine reads and writes around every
// turn.
package conversation

import (
	"strings"
	"time"

	"github.com/agentgraph/engine/runtime/graphruntime"
)

const titleMaxLen = 50

type (
	// Conversation is the thread-level record. Metadata carries the
	// interrupted_graph_id marker while a run awaits resume; it is absent
	// otherwise. OwnerUserID is immutable once set.
	Conversation struct {
		ThreadID    string
		OwnerUserID string
		Title       string
		Metadata    map[string]any
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// Message is one append-only entry in a thread's log. ToolCalls is set
	// only on assistant messages that invoked tools.
	Message struct {
		ThreadID  string
		Role      string
		Content   string
		ToolCalls []graphruntime.ToolCall
		Metadata  map[string]any
		CreatedAt time.Time
	}
)

const metadataInterruptedGraphID = "interrupted_graph_id"

// InterruptedGraphID returns the graph id a conversation is suspended on, if
// any, and whether the marker is present.
func (c Conversation) InterruptedGraphID() (string, bool) {
	if c.Metadata == nil {
		return "", false
	}
	v, ok := c.Metadata[metadataInterruptedGraphID].(string)
	return v, ok
}

// deriveTitle takes the first titleMaxLen runes of seed, so multi-byte
// characters are never split mid-rune.
func deriveTitle(seed string) string {
	seed = strings.TrimSpace(seed)
	runes := []rune(seed)
	if len(runes) <= titleMaxLen {
		return seed
	}
	return string(runes[:titleMaxLen])
}

// lastAssistantMessage returns the last message in msgs with role
// "assistant", and whether one was found.
func lastAssistantMessage(msgs []graphruntime.Message) (graphruntime.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			return msgs[i], true
		}
	}
	return graphruntime.Message{}, false
}
