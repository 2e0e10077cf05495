package graph

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store implementations when a graph does not
// exist. Callers at the service boundary (GraphResolver, the deployment
// service) translate it into apierror.NotFound.
var ErrNotFound = errors.New("graph: not found")

// Store persists graphs and their node/edge tables. Implementations must be
// safe for concurrent use.
type Store interface {
	// GetGraph retrieves a graph by id. Returns ErrNotFound if it does not
	// exist.
	GetGraph(ctx context.Context, id string) (*Graph, error)

	// SaveGraph upserts a graph.
	SaveGraph(ctx context.Context, g *Graph) error

	// ListNodes returns every node belonging to graphID, in no particular
	// order.
	ListNodes(ctx context.Context, graphID string) ([]*GraphNode, error)

	// ListEdges returns every edge belonging to graphID, in no particular
	// order.
	ListEdges(ctx context.Context, graphID string) ([]*GraphEdge, error)

	// ReplaceNodesAndEdges discards every node and edge currently belonging
	// to graphID and replaces them with nodes and edges. The in-memory store
	// does this under one lock; the Mongo store deletes then inserts without
	// a transaction, so a failure part-way is not rolled back. (Used by
	// the deployment service's revert_to_version, which recreates the live
	// graph from a snapshot while preserving original node/edge ids).
	ReplaceNodesAndEdges(ctx context.Context, graphID string, nodes []*GraphNode, edges []*GraphEdge) error
}
