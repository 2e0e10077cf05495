package deployment

import (
	"context"
	"fmt"
	"time"

	"github.com/agentgraph/engine/apierror"
	"github.com/agentgraph/engine/runtime/graph"
)

// Service implements the DeploymentVersionService: snapshot/deploy/
// undeploy/list/get/rename/activate/revert/delete against a graph's own
// Store (nodes, edges, live graph document) and a deployment Store
// (immutable versions).
type Service struct {
	graphs   graph.Store
	versions Store
	now      func() time.Time
}

// NewService constructs a Service. now defaults to time.Now when nil,
// overridable in tests for deterministic DeployedAt/CreatedAt assertions.
func NewService(graphs graph.Store, versions Store, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{graphs: graphs, versions: versions, now: now}
}

// Deploy computes the graph's current snapshot and, if it matches the
// active version's hash and the graph is already deployed, returns that
// version unchanged with needsRedeployment=false. Otherwise it creates a
// new version, activates it, and marks the graph deployed.
func (s *Service) Deploy(ctx context.Context, graphID, name string, caller graph.Caller) (Version, bool, error) {
	g, err := s.requireDeployAccess(ctx, graphID, caller)
	if err != nil {
		return Version{}, false, err
	}

	snap, hash, err := s.currentSnapshot(ctx, graphID, g.Variables)
	if err != nil {
		return Version{}, false, err
	}

	if active, ok, err := s.versions.ActiveVersion(ctx, graphID); err != nil {
		return Version{}, false, apierror.Internal("deployment.deploy", err)
	} else if ok && active.Hash == hash && g.IsDeployed {
		return active, false, nil
	}

	maxVersion, err := s.versions.MaxVersion(ctx, graphID)
	if err != nil {
		return Version{}, false, apierror.Internal("deployment.deploy", err)
	}
	nextVersion := maxVersion + 1
	if name == "" {
		name = fmt.Sprintf("v%d", nextVersion)
	}

	now := s.now()
	v := Version{
		GraphID: graphID, Version: nextVersion, Name: name,
		Snapshot: snap, Hash: hash, IsActive: true, CreatedAt: now,
	}
	if err := s.versions.CreateVersion(ctx, v); err != nil {
		return Version{}, false, apierror.Internal("deployment.deploy", err)
	}
	if err := s.versions.SetActive(ctx, graphID, nextVersion); err != nil {
		return Version{}, false, apierror.Internal("deployment.deploy", err)
	}

	g.IsDeployed = true
	g.DeployedAt = &now
	if err := s.graphs.SaveGraph(ctx, g); err != nil {
		return Version{}, false, apierror.Internal("deployment.deploy", err)
	}
	return v, true, nil
}

// Undeploy marks the graph not deployed. Existing versions are untouched.
func (s *Service) Undeploy(ctx context.Context, graphID string, caller graph.Caller) error {
	g, err := s.requireDeployAccess(ctx, graphID, caller)
	if err != nil {
		return err
	}
	g.IsDeployed = false
	g.DeployedAt = nil
	if err := s.graphs.SaveGraph(ctx, g); err != nil {
		return apierror.Internal("deployment.undeploy", err)
	}
	return nil
}

// GetDeploymentStatus reports whether the graph is deployed and whether its
// live state has drifted from the active version (or no version has ever
// been activated).
func (s *Service) GetDeploymentStatus(ctx context.Context, graphID string, caller graph.Caller) (Status, error) {
	g, err := s.requireViewAccess(ctx, graphID, caller)
	if err != nil {
		return Status{}, err
	}

	_, hash, err := s.currentSnapshot(ctx, graphID, g.Variables)
	if err != nil {
		return Status{}, err
	}

	active, ok, err := s.versions.ActiveVersion(ctx, graphID)
	if err != nil {
		return Status{}, apierror.Internal("deployment.status", err)
	}
	status := Status{IsDeployed: g.IsDeployed, DeployedAt: g.DeployedAt}
	if ok {
		v := active.Version
		status.ActiveVersion = &v
		status.NeedsRedeployment = active.Hash != hash
	} else {
		status.NeedsRedeployment = true
	}
	return status, nil
}

// ListVersions returns one page of graphID's versions ordered newest first.
func (s *Service) ListVersions(ctx context.Context, graphID string, page, size int, caller graph.Caller) (Page, error) {
	if _, err := s.requireViewAccess(ctx, graphID, caller); err != nil {
		return Page{}, err
	}
	p, err := s.versions.ListVersions(ctx, graphID, page, size)
	if err != nil {
		return Page{}, apierror.Internal("deployment.list_versions", err)
	}
	return p, nil
}

// GetVersion returns a version's metadata.
func (s *Service) GetVersion(ctx context.Context, graphID string, version int, caller graph.Caller) (Version, error) {
	if _, err := s.requireViewAccess(ctx, graphID, caller); err != nil {
		return Version{}, err
	}
	return s.lookupVersion(ctx, graphID, version)
}

// GetVersionState translates a version's full snapshot into the
// frontend-oriented shape a graph editor preview consumes.
func (s *Service) GetVersionState(ctx context.Context, graphID string, version int, caller graph.Caller) (VersionState, error) {
	if _, err := s.requireViewAccess(ctx, graphID, caller); err != nil {
		return VersionState{}, err
	}
	v, err := s.lookupVersion(ctx, graphID, version)
	if err != nil {
		return VersionState{}, err
	}

	nodes := make([]FrontendNode, 0, len(v.Snapshot.Nodes))
	for _, n := range v.Snapshot.Nodes {
		nodes = append(nodes, toFrontendNode(n))
	}
	edges := make([]FrontendEdge, len(v.Snapshot.Edges))
	for i, e := range v.Snapshot.Edges {
		edges[i] = toFrontendEdge(e)
	}
	return VersionState{
		Version: v.Version, Name: v.Name, Nodes: nodes, Edges: edges, Variables: v.Snapshot.Variables,
	}, nil
}

// RenameVersion updates a version's display name. Read access is
// sufficient: renaming does not alter deployment state.
func (s *Service) RenameVersion(ctx context.Context, graphID string, version int, name string, caller graph.Caller) error {
	if _, err := s.requireViewAccess(ctx, graphID, caller); err != nil {
		return err
	}
	if err := s.versions.RenameVersion(ctx, graphID, version, name); err != nil {
		return translateStoreErr("deployment.rename_version", err)
	}
	return nil
}

// ActivateVersion makes version the graph's active version without
// touching its live nodes/edges.
func (s *Service) ActivateVersion(ctx context.Context, graphID string, version int, caller graph.Caller) error {
	g, err := s.requireDeployAccess(ctx, graphID, caller)
	if err != nil {
		return err
	}
	if err := s.versions.SetActive(ctx, graphID, version); err != nil {
		return translateStoreErr("deployment.activate_version", err)
	}
	now := s.now()
	g.DeployedAt = &now
	if err := s.graphs.SaveGraph(ctx, g); err != nil {
		return apierror.Internal("deployment.activate_version", err)
	}
	return nil
}

// RevertToVersion is destructive: it discards the graph's current nodes
// and edges, recreates them from version's snapshot preserving original
// ids, restores the snapshot's variables, and activates version.
func (s *Service) RevertToVersion(ctx context.Context, graphID string, version int, caller graph.Caller) error {
	g, err := s.requireDeployAccess(ctx, graphID, caller)
	if err != nil {
		return err
	}
	v, err := s.lookupVersion(ctx, graphID, version)
	if err != nil {
		return err
	}

	nodes := make([]*graph.GraphNode, 0, len(v.Snapshot.Nodes))
	for _, ns := range v.Snapshot.Nodes {
		nodes = append(nodes, restoreNode(graphID, ns))
	}
	edges := make([]*graph.GraphEdge, len(v.Snapshot.Edges))
	for i, es := range v.Snapshot.Edges {
		edges[i] = &graph.GraphEdge{ID: es.ID, GraphID: graphID, SourceNodeID: es.Source, TargetNodeID: es.Target, Data: es.Data}
	}
	if err := s.graphs.ReplaceNodesAndEdges(ctx, graphID, nodes, edges); err != nil {
		return apierror.Internal("deployment.revert_to_version", err)
	}

	g.Variables = v.Snapshot.Variables
	now := s.now()
	g.IsDeployed = true
	g.DeployedAt = &now
	if err := s.graphs.SaveGraph(ctx, g); err != nil {
		return apierror.Internal("deployment.revert_to_version", err)
	}
	if err := s.versions.SetActive(ctx, graphID, version); err != nil {
		return translateStoreErr("deployment.revert_to_version", err)
	}
	return nil
}

// DeleteVersion removes a version, refusing to delete the active one.
func (s *Service) DeleteVersion(ctx context.Context, graphID string, version int, caller graph.Caller) error {
	if _, err := s.requireDeployAccess(ctx, graphID, caller); err != nil {
		return err
	}
	active, ok, err := s.versions.ActiveVersion(ctx, graphID)
	if err != nil {
		return apierror.Internal("deployment.delete_version", err)
	}
	if ok && active.Version == version {
		return apierror.Validation("deployment.delete_version", "cannot delete the active version")
	}
	if err := s.versions.DeleteVersion(ctx, graphID, version); err != nil {
		return translateStoreErr("deployment.delete_version", err)
	}
	return nil
}

func (s *Service) requireViewAccess(ctx context.Context, graphID string, caller graph.Caller) (*graph.Graph, error) {
	g, err := s.graphs.GetGraph(ctx, graphID)
	if err != nil {
		return nil, translateGraphErr("deployment", err)
	}
	if !caller.CanView(g.Owner) {
		return nil, apierror.Forbidden("deployment", "caller lacks a role on this graph")
	}
	return g, nil
}

func (s *Service) requireDeployAccess(ctx context.Context, graphID string, caller graph.Caller) (*graph.Graph, error) {
	g, err := s.graphs.GetGraph(ctx, graphID)
	if err != nil {
		return nil, translateGraphErr("deployment", err)
	}
	if !caller.CanDeploy(g.Owner) {
		return nil, apierror.Forbidden("deployment", "caller lacks deploy permission on this graph")
	}
	return g, nil
}

func (s *Service) currentSnapshot(ctx context.Context, graphID string, variables graph.Variables) (Snapshot, string, error) {
	nodes, err := s.graphs.ListNodes(ctx, graphID)
	if err != nil {
		return Snapshot{}, "", apierror.Internal("deployment.snapshot", err)
	}
	edges, err := s.graphs.ListEdges(ctx, graphID)
	if err != nil {
		return Snapshot{}, "", apierror.Internal("deployment.snapshot", err)
	}
	snap := normalize(nodes, edges, variables, s.now().UnixMilli())
	hash, err := hashSnapshot(snap)
	if err != nil {
		return Snapshot{}, "", apierror.Internal("deployment.snapshot", err)
	}
	return snap, hash, nil
}

func (s *Service) lookupVersion(ctx context.Context, graphID string, version int) (Version, error) {
	v, err := s.versions.GetVersion(ctx, graphID, version)
	if err != nil {
		return Version{}, translateStoreErr("deployment.get_version", err)
	}
	return v, nil
}

func translateGraphErr(op string, err error) error {
	if err == graph.ErrNotFound {
		return apierror.NotFound(op, "graph not found")
	}
	return apierror.Internal(op, err)
}

func translateStoreErr(op string, err error) error {
	if err == ErrNotFound {
		return apierror.NotFound(op, "version not found")
	}
	return apierror.Internal(op, err)
}

// restoreNode rebuilds a live GraphNode from a NodeSnapshot, preferring
// data.config's systemPrompt/tools over the snapshot's top-level mirror
// fields so a node edited after its last deploy still reverts to exactly
// what was live when the version was captured.
func restoreNode(graphID string, ns NodeSnapshot) *graph.GraphNode {
	data := deepCopyMap(ns.Data)
	config, _ := data["config"].(map[string]any)

	prompt := ns.Prompt
	tools := ns.Tools
	if config != nil {
		if sp, ok := config["systemPrompt"].(string); ok {
			prompt = sp
		}
		if t := toolsFromAny(config["tools"]); t != nil {
			tools = t
		}
	}

	n := &graph.GraphNode{
		ID: ns.ID, GraphID: graphID, Type: ns.Type,
		Position: ns.Position, Size: graph.Size{Width: ns.Width, Height: ns.Height},
		Prompt: prompt, Tools: tools, Memory: deepCopyMap(ns.Memory), Data: data,
	}
	n.MirrorConfig()
	return n
}

func toolsFromAny(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
