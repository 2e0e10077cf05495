// Package deployment implements the DeploymentVersionService: snapshotting
// a graph's live nodes and edges into an immutable version, detecting
// whether the live graph has drifted from its active version, and
// reverting a graph back to a prior version's exact state.
package deployment

import (
	"time"

	"github.com/agentgraph/engine/runtime/graph"
)

type (
	// NodeSnapshot is one node's state as captured into a version. It
	// carries both the mirror fields (Prompt, Tools) and the authoritative
	// Data.config, so a revert can repopulate the mirrors even from an
	// older snapshot that predates Data.config being authoritative.
	NodeSnapshot struct {
		ID               string         `bson:"id" json:"id"`
		Type             string         `bson:"type" json:"type"`
		Tools            []string       `bson:"tools" json:"tools"`
		Memory           map[string]any `bson:"memory,omitempty" json:"memory,omitempty"`
		Prompt           string         `bson:"prompt" json:"prompt"`
		Position         graph.Position `bson:"position" json:"position"`
		PositionAbsolute graph.Position `bson:"position_absolute" json:"position_absolute"`
		Width            float64        `bson:"width" json:"width"`
		Height           float64        `bson:"height" json:"height"`
		Data             map[string]any `bson:"data" json:"data"`
	}

	// EdgeSnapshot is one edge's state as captured into a version.
	EdgeSnapshot struct {
		ID     string `bson:"id" json:"id"`
		Source string `bson:"source" json:"source"`
		Target string `bson:"target" json:"target"`
		Data   graph.EdgeData `bson:"data" json:"data"`
	}

	// Snapshot is the full captured state of a graph at the moment a
	// version was created (or, pre-creation, the current live state
	// computed for change detection).
	Snapshot struct {
		Nodes     map[string]NodeSnapshot `bson:"nodes" json:"nodes"`
		Edges     []EdgeSnapshot          `bson:"edges" json:"edges"`
		Variables graph.Variables         `bson:"variables" json:"variables"`
		LastSaved int64                   `bson:"last_saved" json:"last_saved"`
	}

	// Version is one immutable, numbered deployment version of a graph.
	Version struct {
		GraphID   string
		Version   int
		Name      string
		Snapshot  Snapshot
		Hash      string
		IsActive  bool
		CreatedAt time.Time
	}

	// Status is the answer to get_deployment_status: whether the graph is
	// currently deployed, and whether its live state has drifted from the
	// active version (or no version has ever been activated).
	Status struct {
		IsDeployed         bool
		DeployedAt         *time.Time
		ActiveVersion      *int
		NeedsRedeployment  bool
	}

	// FrontendNode is get_version_state's per-node shape: a reactflow-ready
	// projection of a NodeSnapshot, distinct from the storage shape because
	// the frontend graph editor expects "position"/"data" directly on the
	// node rather than nested under a version document.
	FrontendNode struct {
		ID       string         `json:"id"`
		Type     string         `json:"type"`
		Position graph.Position `json:"position"`
		Width    float64        `json:"width"`
		Height   float64        `json:"height"`
		Data     map[string]any `json:"data"`
	}

	// FrontendEdge is get_version_state's per-edge shape, with routing
	// metadata flattened to the top level the way the graph editor expects
	// for edge styling.
	FrontendEdge struct {
		ID             string          `json:"id"`
		Source         string          `json:"source"`
		Target         string          `json:"target"`
		Type           graph.EdgeType  `json:"type"`
		Label          string          `json:"label,omitempty"`
		SourceHandleID string          `json:"source_handle_id,omitempty"`
	}

	// VersionState is the full get_version_state response: the version's
	// nodes and edges translated into frontend-oriented shapes, plus the
	// variables and name a graph editor preview needs.
	VersionState struct {
		Version   int
		Name      string
		Nodes     []FrontendNode
		Edges     []FrontendEdge
		Variables graph.Variables
	}

	// Page is one page of a list_versions response.
	Page struct {
		Versions []Version
		Total    int
	}
)

func toFrontendNode(n NodeSnapshot) FrontendNode {
	return FrontendNode{
		ID: n.ID, Type: n.Type, Position: n.Position,
		Width: n.Width, Height: n.Height, Data: n.Data,
	}
}

func toFrontendEdge(e EdgeSnapshot) FrontendEdge {
	return FrontendEdge{
		ID: e.ID, Source: e.Source, Target: e.Target,
		Type: e.Data.EdgeType, Label: e.Data.Label, SourceHandleID: e.Data.SourceHandleID,
	}
}
