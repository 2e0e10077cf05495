// Package memory provides an in-memory graph.Store implementation for
// development and testing.
package memory

import (
	"context"
	"sync"

	"github.com/agentgraph/engine/runtime/graph"
)

// Store is an in-memory implementation of graph.Store. Safe for concurrent
// use.
type Store struct {
	mu     sync.RWMutex
	graphs map[string]*graph.Graph
	nodes  map[string][]*graph.GraphNode
	edges  map[string][]*graph.GraphEdge
}

var _ graph.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		graphs: make(map[string]*graph.Graph),
		nodes:  make(map[string][]*graph.GraphNode),
		edges:  make(map[string][]*graph.GraphEdge),
	}
}

func (s *Store) GetGraph(ctx context.Context, id string) (*graph.Graph, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[id]
	if !ok {
		return nil, graph.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *Store) SaveGraph(ctx context.Context, g *graph.Graph) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	s.graphs[g.ID] = &cp
	return nil
}

func (s *Store) ListNodes(ctx context.Context, graphID string) ([]*graph.GraphNode, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*graph.GraphNode, len(s.nodes[graphID]))
	copy(out, s.nodes[graphID])
	return out, nil
}

func (s *Store) ListEdges(ctx context.Context, graphID string) ([]*graph.GraphEdge, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*graph.GraphEdge, len(s.edges[graphID]))
	copy(out, s.edges[graphID])
	return out, nil
}

func (s *Store) ReplaceNodesAndEdges(ctx context.Context, graphID string, nodes []*graph.GraphNode, edges []*graph.GraphEdge) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[graphID] = append([]*graph.GraphNode(nil), nodes...)
	s.edges[graphID] = append([]*graph.GraphEdge(nil), edges...)
	return nil
}

// SeedNodes is a test helper for populating nodes without going through
// ReplaceNodesAndEdges's graphID-wide replace semantics.
func (s *Store) SeedNodes(graphID string, nodes ...*graph.GraphNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[graphID] = append(s.nodes[graphID], nodes...)
}

// SeedEdges is a test helper mirroring SeedNodes for edges.
func (s *Store) SeedEdges(graphID string, edges ...*graph.GraphEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[graphID] = append(s.edges[graphID], edges...)
}
