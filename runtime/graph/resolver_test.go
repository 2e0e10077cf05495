package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentgraph/engine/runtime/checkpoint"
	"github.com/agentgraph/engine/runtime/graphruntime"
)

type fakeStore struct {
	graphs map[string]*Graph
	nodes  map[string][]*GraphNode
	edges  map[string][]*GraphEdge
}

func (s *fakeStore) GetGraph(ctx context.Context, id string) (*Graph, error) {
	g, ok := s.graphs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}
func (s *fakeStore) SaveGraph(ctx context.Context, g *Graph) error {
	s.graphs[g.ID] = g
	return nil
}
func (s *fakeStore) ListNodes(ctx context.Context, graphID string) ([]*GraphNode, error) {
	return s.nodes[graphID], nil
}
func (s *fakeStore) ListEdges(ctx context.Context, graphID string) ([]*GraphEdge, error) {
	return s.edges[graphID], nil
}
func (s *fakeStore) ReplaceNodesAndEdges(ctx context.Context, graphID string, nodes []*GraphNode, edges []*GraphEdge) error {
	s.nodes[graphID] = nodes
	s.edges[graphID] = edges
	return nil
}

type fakeRuntime struct{ name string }

func (r *fakeRuntime) StreamEvents(ctx context.Context, input graphruntime.Input, cfg graphruntime.Config) (<-chan graphruntime.Event, error) {
	return nil, nil
}
func (r *fakeRuntime) Resume(ctx context.Context, cmd graphruntime.Command, cfg graphruntime.Config) (<-chan graphruntime.Event, error) {
	return nil, nil
}
func (r *fakeRuntime) GetState(ctx context.Context, cfg graphruntime.Config) (checkpoint.Snapshot, error) {
	return checkpoint.Snapshot{}, nil
}
func (r *fakeRuntime) Cleanup(ctx context.Context) error { return nil }

type fakeCompiler struct {
	compiled *fakeRuntime
	gotGraph *Graph
	gotNodes []*GraphNode
	gotEdges []*GraphEdge
	gotOwner string
}

func (c *fakeCompiler) Compile(ctx context.Context, g *Graph, nodes []*GraphNode, edges []*GraphEdge, llmParams LLMParams, ownerID string) (graphruntime.Runtime, error) {
	c.gotGraph, c.gotNodes, c.gotEdges, c.gotOwner = g, nodes, edges, ownerID
	c.compiled = &fakeRuntime{name: "compiled:" + g.ID}
	return c.compiled, nil
}

type fakeBuiltin struct{ called bool }

func (b *fakeBuiltin) Builtin(llmParams LLMParams) (graphruntime.Runtime, error) {
	b.called = true
	return &fakeRuntime{name: "builtin"}, nil
}

func TestResolveReturnsBuiltinForNilGraphID(t *testing.T) {
	builtin := &fakeBuiltin{}
	r := NewResolver(&fakeStore{}, &fakeCompiler{}, builtin)

	resolved, err := r.Resolve(context.Background(), "", Caller{UserID: "u1"}, LLMParams{Model: "claude-test"})
	require.NoError(t, err)
	require.True(t, builtin.called)
	require.Empty(t, resolved.Context)
}

func TestResolveCompilesGraphAndSeedsContext(t *testing.T) {
	store := &fakeStore{
		graphs: map[string]*Graph{
			"g1": {
				ID: "g1", Owner: "u1",
				Variables: Variables{Context: map[string]ContextVariable{
					"topic": {Type: "string", Value: map[string]any{"value": "refunds"}},
					"depth": {Type: "number", Value: 3},
				}},
			},
		},
		nodes: map[string][]*GraphNode{"g1": {{ID: "n1", GraphID: "g1"}}},
		edges: map[string][]*GraphEdge{"g1": {{ID: "e1", GraphID: "g1"}}},
	}
	compiler := &fakeCompiler{}
	r := NewResolver(store, compiler, &fakeBuiltin{})

	resolved, err := r.Resolve(context.Background(), "g1", Caller{UserID: "u1"}, LLMParams{Model: "claude-test"})
	require.NoError(t, err)
	require.Equal(t, "u1", compiler.gotOwner)
	require.Len(t, compiler.gotNodes, 1)
	require.Len(t, compiler.gotEdges, 1)
	require.Equal(t, "refunds", resolved.Context["topic"])
	require.Equal(t, 3, resolved.Context["depth"])
}

func TestResolveForbidsCallerWithoutAccess(t *testing.T) {
	store := &fakeStore{graphs: map[string]*Graph{"g1": {ID: "g1", Owner: "owner-1"}}}
	r := NewResolver(store, &fakeCompiler{}, &fakeBuiltin{})

	_, err := r.Resolve(context.Background(), "g1", Caller{UserID: "stranger"}, LLMParams{})
	require.Error(t, err)
}

func TestResolveReturnsNotFoundForMissingGraph(t *testing.T) {
	r := NewResolver(&fakeStore{}, &fakeCompiler{}, &fakeBuiltin{})

	_, err := r.Resolve(context.Background(), "missing", Caller{UserID: "u1"}, LLMParams{})
	require.Error(t, err)
}
