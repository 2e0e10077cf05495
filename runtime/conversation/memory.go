package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentgraph/engine/apierror"
	"github.com/agentgraph/engine/runtime/graphruntime"
)

// MemoryStore is an in-memory Store implementation for tests. Safe for
// concurrent use.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]Message
	now           func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, threadID, owner, seedMessage string, metadata map[string]any) (string, Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if threadID != "" {
		if c, ok := s.conversations[threadID]; ok {
			return threadID, *c, nil
		}
	} else {
		threadID = uuid.NewString()
	}

	now := s.now()
	c := &Conversation{
		ThreadID:    threadID,
		OwnerUserID: owner,
		Title:       deriveTitle(seedMessage),
		Metadata:    cloneMap(metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.conversations[threadID] = c
	return threadID, *c, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, threadID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[threadID]
	if !ok {
		return Conversation{}, apierror.NotFound("conversation.get", "conversation not found")
	}
	return *c, nil
}

func (s *MemoryStore) AppendUserMessage(ctx context.Context, threadID, content string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[threadID]; !ok {
		return apierror.NotFound("conversation.append_user_message", "conversation not found")
	}
	s.messages[threadID] = append(s.messages[threadID], Message{
		ThreadID: threadID, Role: "user", Content: content,
		Metadata: cloneMap(metadata), CreatedAt: s.now(),
	})
	return nil
}

func (s *MemoryStore) AppendAssistantMessage(ctx context.Context, threadID string, msgs []graphruntime.Message) (bool, error) {
	last, ok := lastAssistantMessage(msgs)
	if !ok {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[threadID]
	if !ok {
		return false, apierror.NotFound("conversation.append_assistant_message", "conversation not found")
	}
	now := s.now()
	var metadata map[string]any
	if len(last.ToolCalls) > 0 {
		metadata = map[string]any{"tool_calls": last.ToolCalls}
	}
	s.messages[threadID] = append(s.messages[threadID], Message{
		ThreadID: threadID, Role: "assistant", Content: last.Content,
		ToolCalls: last.ToolCalls, Metadata: metadata, CreatedAt: now,
	})
	c.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages[threadID]))
	copy(out, s.messages[threadID])
	return out, nil
}

func (s *MemoryStore) SetInterruptMarker(ctx context.Context, threadID, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[threadID]
	if !ok {
		return apierror.NotFound("conversation.set_interrupt_marker", "conversation not found")
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata[metadataInterruptedGraphID] = graphID
	return nil
}

func (s *MemoryStore) ClearInterruptMarker(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[threadID]
	if !ok {
		return apierror.NotFound("conversation.clear_interrupt_marker", "conversation not found")
	}
	delete(c.Metadata, metadataInterruptedGraphID)
	return nil
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
