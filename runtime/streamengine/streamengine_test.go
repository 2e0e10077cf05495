package streamengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentgraph/engine/apierror"
	"github.com/agentgraph/engine/runtime/checkpoint"
	"github.com/agentgraph/engine/runtime/conversation"
	"github.com/agentgraph/engine/runtime/graph"
	"github.com/agentgraph/engine/runtime/graphruntime"
	"github.com/agentgraph/engine/runtime/task"
)

// fakeRuntime implements graphruntime.Runtime from a scripted event queue.
// GetState returns whatever snapshot is set, letting tests drive the
// interrupt-detection path deterministically. Resume clears the snapshot,
// as a real runtime consumes the pending task it resumes.
type fakeRuntime struct {
	events    []graphruntime.Event
	snapshot  checkpoint.Snapshot
	cleanedUp bool
	resumed   bool
}

func (f *fakeRuntime) StreamEvents(ctx context.Context, input graphruntime.Input, cfg graphruntime.Config) (<-chan graphruntime.Event, error) {
	return f.replay(), nil
}

func (f *fakeRuntime) Resume(ctx context.Context, cmd graphruntime.Command, cfg graphruntime.Config) (<-chan graphruntime.Event, error) {
	f.resumed = true
	f.snapshot = checkpoint.Snapshot{}
	return f.replay(), nil
}

func (f *fakeRuntime) replay() <-chan graphruntime.Event {
	ch := make(chan graphruntime.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func (f *fakeRuntime) GetState(ctx context.Context, cfg graphruntime.Config) (checkpoint.Snapshot, error) {
	return f.snapshot, nil
}

func (f *fakeRuntime) Cleanup(ctx context.Context) error {
	f.cleanedUp = true
	return nil
}

var _ graphruntime.Runtime = (*fakeRuntime)(nil)

// fakeBuiltin and fakeCompiler let tests build a graph.Resolver without a
// real graph store: every test here resolves the builtin (empty graphID).
type fakeBuiltin struct{ rt graphruntime.Runtime }

func (f fakeBuiltin) Builtin(graph.LLMParams) (graphruntime.Runtime, error) { return f.rt, nil }

type fakeCompiler struct{}

func (fakeCompiler) Compile(context.Context, *graph.Graph, []*graph.GraphNode, []*graph.GraphEdge, graph.LLMParams, string) (graphruntime.Runtime, error) {
	panic("not used: tests only resolve the builtin runtime")
}

// recordingSink captures every envelope sent to it in order.
type recordingSink struct {
	envelopes []Envelope
	closed    bool
	failAfter int // if > 0, Send returns apierror.ClientClosed after this many sends
}

func (s *recordingSink) Send(ctx context.Context, env Envelope) error {
	if s.failAfter > 0 && len(s.envelopes) >= s.failAfter {
		return apierror.ClientClosed("test.sink")
	}
	s.envelopes = append(s.envelopes, env)
	return nil
}

func (s *recordingSink) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

func (s *recordingSink) types() []EnvelopeType {
	out := make([]EnvelopeType, len(s.envelopes))
	for i, e := range s.envelopes {
		out[i] = e.Type
	}
	return out
}

func newTestEngine(store *conversation.MemoryStore, rt graphruntime.Runtime) *Engine {
	resolver := graph.NewResolver(nil, fakeCompiler{}, fakeBuiltin{rt: rt})
	return New(task.NewManager(), store, resolver, nil)
}

func TestStreamNewTurnEmitsEnvelopesAndPersistsAssistantMessage(t *testing.T) {
	store := conversation.NewMemoryStore()
	rt := &fakeRuntime{
		events: []graphruntime.Event{
			{Type: graphruntime.EventChainStart, Node: "respond"},
			{Type: graphruntime.EventChatModelStart, Node: "respond"},
			{Type: graphruntime.EventChatModelStream, Node: "respond", Data: graphruntime.EventData{Delta: "Hello"}},
			{Type: graphruntime.EventChatModelStream, Node: "respond", Data: graphruntime.EventData{Delta: ", world"}},
			{Type: graphruntime.EventChatModelEnd, Node: "respond"},
			{
				Type: graphruntime.EventChainEnd, Node: "respond",
				Data: graphruntime.EventData{Messages: []graphruntime.Message{
					{Role: "user", Content: "hi"},
					{Role: "assistant", Content: "Hello, world"},
				}},
			},
		},
	}
	engine := newTestEngine(store, rt)
	sink := &recordingSink{}

	err := engine.StreamNewTurn(context.Background(), NewTurnRequest{
		ThreadID:    "t1",
		Owner:       "owner-1",
		Caller:      graph.Caller{UserID: "owner-1"},
		UserMessage: "hi",
	}, sink)
	require.NoError(t, err)

	types := sink.types()
	require.Equal(t, EnvelopeStatus, types[0])
	require.Contains(t, types, EnvelopeNodeStart)
	require.Contains(t, types, EnvelopeContent)
	require.Contains(t, types, EnvelopeNodeEnd)
	require.Equal(t, EnvelopeDone, types[len(types)-1])
	require.True(t, rt.cleanedUp)

	threadID := "t1"
	msgs, err := store.ListMessages(context.Background(), threadID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "user", msgs[0].Role)
	require.Equal(t, "assistant", msgs[1].Role)
	require.Equal(t, "Hello, world", msgs[1].Content)

	c, err := store.GetConversation(context.Background(), threadID)
	require.NoError(t, err)
	_, interrupted := c.InterruptedGraphID()
	require.False(t, interrupted)
}

func TestStreamNewTurnFallsBackToAccumulatedContentWhenChainEndCarriesNoMessages(t *testing.T) {
	store := conversation.NewMemoryStore()
	rt := &fakeRuntime{
		events: []graphruntime.Event{
			{Type: graphruntime.EventChatModelStream, Data: graphruntime.EventData{Delta: "partial "}},
			{Type: graphruntime.EventChatModelStream, Data: graphruntime.EventData{Delta: "answer"}},
		},
	}
	engine := newTestEngine(store, rt)
	sink := &recordingSink{}

	err := engine.StreamNewTurn(context.Background(), NewTurnRequest{
		ThreadID: "t1", Owner: "owner-1", Caller: graph.Caller{UserID: "owner-1"}, UserMessage: "hi",
	}, sink)
	require.NoError(t, err)

	msgs, err := store.ListMessages(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "partial answer", msgs[1].Content)
}

func TestStreamNewTurnSetsInterruptMarkerAndSkipsDone(t *testing.T) {
	store := conversation.NewMemoryStore()
	rt := &fakeRuntime{
		events: []graphruntime.Event{
			{Type: graphruntime.EventChatModelStream, Data: graphruntime.EventData{Delta: "thinking"}},
		},
		snapshot: checkpoint.Snapshot{
			Tasks: []checkpoint.PendingTask{{ID: "task-1", Name: "await_approval"}},
		},
	}
	engine := newTestEngine(store, rt)
	sink := &recordingSink{}

	err := engine.StreamNewTurn(context.Background(), NewTurnRequest{
		ThreadID: "t1", Owner: "owner-1", Caller: graph.Caller{UserID: "owner-1"}, UserMessage: "approve?",
	}, sink)
	require.NoError(t, err)

	types := sink.types()
	require.Contains(t, types, EnvelopeInterrupt)
	require.NotContains(t, types, EnvelopeDone)

	c, err := store.GetConversation(context.Background(), "t1")
	require.NoError(t, err)
	gid, ok := c.InterruptedGraphID()
	require.True(t, ok)
	require.Equal(t, "", gid) // builtin fallback graph id is empty
}

func TestResumeTurnFailsNotFoundWithoutInterruptMarker(t *testing.T) {
	store := conversation.NewMemoryStore()
	_, _, err := store.GetOrCreate(context.Background(), "t1", "owner-1", "hi", nil)
	require.NoError(t, err)

	engine := newTestEngine(store, &fakeRuntime{})
	sink := &recordingSink{}

	err = engine.ResumeTurn(context.Background(), ResumeRequest{
		ThreadID: "t1", Caller: graph.Caller{UserID: "owner-1"},
	}, sink)
	require.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
}

func TestResumeTurnDrivesRuntimeResume(t *testing.T) {
	store := conversation.NewMemoryStore()
	_, _, err := store.GetOrCreate(context.Background(), "t1", "owner-1", "approve?", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetInterruptMarker(context.Background(), "t1", ""))

	rt := &fakeRuntime{
		events: []graphruntime.Event{
			{
				Type: graphruntime.EventChainEnd, Node: "respond",
				Data: graphruntime.EventData{Messages: []graphruntime.Message{
					{Role: "assistant", Content: "approved, continuing"},
				}},
			},
		},
		snapshot: checkpoint.Snapshot{Tasks: []checkpoint.PendingTask{{ID: "task-1", Name: "await_approval"}}},
	}
	engine := newTestEngine(store, rt)
	sink := &recordingSink{}

	err = engine.ResumeTurn(context.Background(), ResumeRequest{
		ThreadID: "t1",
		Caller:   graph.Caller{UserID: "owner-1"},
		Command:  graphruntime.Command{Update: map[string]any{"approved": true}},
	}, sink)
	require.NoError(t, err)
	require.True(t, rt.resumed)

	types := sink.types()
	require.Equal(t, StatusResumed, sink.envelopes[0].Data.(StatusData).Status)
	require.Equal(t, EnvelopeDone, types[len(types)-1])

	msgs, err := store.ListMessages(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "approved, continuing", msgs[len(msgs)-1].Content)
}

func TestStreamNewTurnStopObservedWithinOneEvent(t *testing.T) {
	store := conversation.NewMemoryStore()
	events := make(chan graphruntime.Event)
	rt := &blockingRuntime{events: events}

	engine := newTestEngine(store, rt)
	sink := &recordingSink{}

	done := make(chan error, 1)
	go func() {
		done <- engine.StreamNewTurn(context.Background(), NewTurnRequest{
			ThreadID: "t1", Owner: "owner-1", Caller: graph.Caller{UserID: "owner-1"}, UserMessage: "hi",
		}, sink)
	}()

	// Give StreamNewTurn time to register the run, then request a stop.
	require.Eventually(t, func() bool {
		return engine.Stop("t1")
	}, time.Second, time.Millisecond)
	events <- graphruntime.Event{Type: graphruntime.EventChatModelStream, Data: graphruntime.EventData{Delta: "x"}}
	close(events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("StreamNewTurn did not observe the stop flag")
	}

	require.Contains(t, sink.types(), EnvelopeError)
}

// blockingRuntime streams whatever is sent on events, letting a test
// control exactly when the engine observes the next event.
type blockingRuntime struct {
	events chan graphruntime.Event
}

func (b *blockingRuntime) StreamEvents(ctx context.Context, input graphruntime.Input, cfg graphruntime.Config) (<-chan graphruntime.Event, error) {
	return b.events, nil
}
func (b *blockingRuntime) Resume(ctx context.Context, cmd graphruntime.Command, cfg graphruntime.Config) (<-chan graphruntime.Event, error) {
	return b.events, nil
}
func (b *blockingRuntime) GetState(ctx context.Context, cfg graphruntime.Config) (checkpoint.Snapshot, error) {
	return checkpoint.Snapshot{}, nil
}
func (b *blockingRuntime) Cleanup(ctx context.Context) error { return nil }

var _ graphruntime.Runtime = (*blockingRuntime)(nil)
