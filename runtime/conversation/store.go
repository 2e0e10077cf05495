package conversation

import (
	"context"

	"github.com/agentgraph/engine/runtime/graphruntime"
)

// Store persists conversations and their message logs. Implementations must
// be safe for concurrent use. All operations use short transactions;
// callers invoked during teardown treat failures as best-effort (logged,
// swallowed) rather than fatal — see the streamengine persistence-guarantee
// path.
type Store interface {
	// GetOrCreate returns the existing conversation for threadID, or
	// creates one owned by owner with a title derived from the first 50
	// characters of seedMessage. If threadID is empty, a new id is
	// generated. Concurrent calls with the same threadID never race each
	// other into creating two conversations.
	GetOrCreate(ctx context.Context, threadID, owner, seedMessage string, metadata map[string]any) (string, Conversation, error)

	// GetConversation loads a conversation by id. Returns apierror.NotFound
	// if it does not exist.
	GetConversation(ctx context.Context, threadID string) (Conversation, error)

	// AppendUserMessage appends a user message to threadID's log.
	AppendUserMessage(ctx context.Context, threadID, content string, metadata map[string]any) error

	// AppendAssistantMessage extracts the last assistant message from msgs
	// (the full message list a GraphRuntime run produced), persists its
	// content and tool-call metadata, and bumps Conversation.updated_at. A
	// no-op, returning (false, nil), if msgs contains no assistant message.
	AppendAssistantMessage(ctx context.Context, threadID string, msgs []graphruntime.Message) (appended bool, err error)

	// ListMessages returns threadID's message log in insertion order.
	ListMessages(ctx context.Context, threadID string) ([]Message, error)

	// SetInterruptMarker idempotently records that threadID is suspended
	// awaiting resume on graphID.
	SetInterruptMarker(ctx context.Context, threadID, graphID string) error

	// ClearInterruptMarker idempotently removes the interrupt marker.
	ClearInterruptMarker(ctx context.Context, threadID string) error
}
