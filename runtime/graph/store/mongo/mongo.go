// Package mongo provides a MongoDB implementation of graph.Store, persisting
// graphs and their node/edge tables for durability across restarts.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentgraph/engine/runtime/graph"
)

// Store is a MongoDB implementation of graph.Store. Graphs, nodes, and
// edges live in separate collections so ReplaceNodesAndEdges can discard and
// recreate a graph's node/edge tables without touching the graph document
// itself.
type Store struct {
	graphs *mongo.Collection
	nodes  *mongo.Collection
	edges  *mongo.Collection
}

var _ graph.Store = (*Store)(nil)

// New creates a MongoDB-backed Store using the three collections of db.
func New(db *mongo.Database) *Store {
	return &Store{
		graphs: db.Collection("graphs"),
		nodes:  db.Collection("graph_nodes"),
		edges:  db.Collection("graph_edges"),
	}
}

type graphDocument struct {
	ID          string           `bson:"_id"`
	Owner       string           `bson:"owner"`
	Workspace   string           `bson:"workspace,omitempty"`
	Parent      string           `bson:"parent,omitempty"`
	Folder      string           `bson:"folder,omitempty"`
	Name        string           `bson:"name"`
	Description string           `bson:"description,omitempty"`
	Color       string           `bson:"color,omitempty"`
	IsDeployed  bool             `bson:"is_deployed"`
	Variables   graph.Variables  `bson:"variables"`
	DeployedAt  *time.Time       `bson:"deployed_at,omitempty"`
}

type nodeDocument struct {
	ID       string         `bson:"_id"`
	GraphID  string         `bson:"graph_id"`
	Type     string         `bson:"type"`
	Position graph.Position `bson:"position"`
	Size     graph.Size     `bson:"size"`
	Prompt   string         `bson:"prompt,omitempty"`
	Tools    []string       `bson:"tools,omitempty"`
	Memory   bson.M         `bson:"memory,omitempty"`
	Data     bson.M         `bson:"data,omitempty"`
}

type edgeDocument struct {
	ID           string         `bson:"_id"`
	GraphID      string         `bson:"graph_id"`
	SourceNodeID string         `bson:"source_node_id"`
	TargetNodeID string         `bson:"target_node_id"`
	Data         graph.EdgeData `bson:"data"`
}

func (s *Store) GetGraph(ctx context.Context, id string) (*graph.Graph, error) {
	var doc graphDocument
	err := s.graphs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, graph.ErrNotFound
		}
		return nil, fmt.Errorf("mongodb get graph %q: %w", id, err)
	}
	return graphFromDocument(&doc), nil
}

func (s *Store) SaveGraph(ctx context.Context, g *graph.Graph) error {
	doc := graphToDocument(g)
	opts := options.Replace().SetUpsert(true)
	_, err := s.graphs.ReplaceOne(ctx, bson.M{"_id": g.ID}, doc, opts)
	if err != nil {
		return fmt.Errorf("mongodb save graph %q: %w", g.ID, err)
	}
	return nil
}

func (s *Store) ListNodes(ctx context.Context, graphID string) ([]*graph.GraphNode, error) {
	cursor, err := s.nodes.Find(ctx, bson.M{"graph_id": graphID})
	if err != nil {
		return nil, fmt.Errorf("mongodb list nodes for graph %q: %w", graphID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []nodeDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb list nodes decode: %w", err)
	}
	out := make([]*graph.GraphNode, len(docs))
	for i, d := range docs {
		out[i] = nodeFromDocument(&d)
	}
	return out, nil
}

func (s *Store) ListEdges(ctx context.Context, graphID string) ([]*graph.GraphEdge, error) {
	cursor, err := s.edges.Find(ctx, bson.M{"graph_id": graphID})
	if err != nil {
		return nil, fmt.Errorf("mongodb list edges for graph %q: %w", graphID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []edgeDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb list edges decode: %w", err)
	}
	out := make([]*graph.GraphEdge, len(docs))
	for i, d := range docs {
		out[i] = edgeFromDocument(&d)
	}
	return out, nil
}

// ReplaceNodesAndEdges discards every node and edge document for graphID and
// inserts the replacements. Mongo has no multi-collection ACID transaction
// here without a replica-set session; revert_to_version is already a
// destructive, caller-initiated operation, so this best-effort
// delete-then-insert sequence matches the semantics the deployment service
// needs without requiring a sharded-transaction deployment topology.
func (s *Store) ReplaceNodesAndEdges(ctx context.Context, graphID string, nodes []*graph.GraphNode, edges []*graph.GraphEdge) error {
	if _, err := s.nodes.DeleteMany(ctx, bson.M{"graph_id": graphID}); err != nil {
		return fmt.Errorf("mongodb delete nodes for graph %q: %w", graphID, err)
	}
	if _, err := s.edges.DeleteMany(ctx, bson.M{"graph_id": graphID}); err != nil {
		return fmt.Errorf("mongodb delete edges for graph %q: %w", graphID, err)
	}
	if len(nodes) > 0 {
		docs := make([]any, len(nodes))
		for i, n := range nodes {
			docs[i] = nodeToDocument(n)
		}
		if _, err := s.nodes.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("mongodb insert nodes for graph %q: %w", graphID, err)
		}
	}
	if len(edges) > 0 {
		docs := make([]any, len(edges))
		for i, e := range edges {
			docs[i] = edgeToDocument(e)
		}
		if _, err := s.edges.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("mongodb insert edges for graph %q: %w", graphID, err)
		}
	}
	return nil
}

func graphToDocument(g *graph.Graph) *graphDocument {
	return &graphDocument{
		ID: g.ID, Owner: g.Owner, Workspace: g.Workspace, Parent: g.Parent,
		Folder: g.Folder, Name: g.Name, Description: g.Description, Color: g.Color,
		IsDeployed: g.IsDeployed, Variables: g.Variables, DeployedAt: g.DeployedAt,
	}
}

func graphFromDocument(d *graphDocument) *graph.Graph {
	return &graph.Graph{
		ID: d.ID, Owner: d.Owner, Workspace: d.Workspace, Parent: d.Parent,
		Folder: d.Folder, Name: d.Name, Description: d.Description, Color: d.Color,
		IsDeployed: d.IsDeployed, Variables: d.Variables, DeployedAt: d.DeployedAt,
	}
}

func nodeToDocument(n *graph.GraphNode) *nodeDocument {
	return &nodeDocument{
		ID: n.ID, GraphID: n.GraphID, Type: n.Type, Position: n.Position, Size: n.Size,
		Prompt: n.Prompt, Tools: n.Tools, Memory: bson.M(n.Memory), Data: bson.M(n.Data),
	}
}

func nodeFromDocument(d *nodeDocument) *graph.GraphNode {
	return &graph.GraphNode{
		ID: d.ID, GraphID: d.GraphID, Type: d.Type, Position: d.Position, Size: d.Size,
		Prompt: d.Prompt, Tools: d.Tools, Memory: map[string]any(d.Memory), Data: map[string]any(d.Data),
	}
}

func edgeToDocument(e *graph.GraphEdge) *edgeDocument {
	return &edgeDocument{
		ID: e.ID, GraphID: e.GraphID, SourceNodeID: e.SourceNodeID,
		TargetNodeID: e.TargetNodeID, Data: e.Data,
	}
}

func edgeFromDocument(d *edgeDocument) *graph.GraphEdge {
	return &graph.GraphEdge{
		ID: d.ID, GraphID: d.GraphID, SourceNodeID: d.SourceNodeID,
		TargetNodeID: d.TargetNodeID, Data: d.Data,
	}
}
