package deployment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentgraph/engine/apierror"
	"github.com/agentgraph/engine/runtime/graph"
	memorystore "github.com/agentgraph/engine/runtime/graph/store/memory"
)

func newTestService(t *testing.T) (*Service, *memorystore.Store, func()) {
	t.Helper()
	graphs := memorystore.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	advance := func() { now = now.Add(time.Minute) }
	svc := NewService(graphs, NewMemoryStore(), func() time.Time { return now })
	return svc, graphs, advance
}

func seedGraph(t *testing.T, graphs *memorystore.Store, id, owner string) {
	t.Helper()
	require.NoError(t, graphs.SaveGraph(context.Background(), &graph.Graph{ID: id, Owner: owner}))
	graphs.SeedNodes(id, &graph.GraphNode{
		ID: "n1", GraphID: id, Type: "agent", Prompt: "be helpful", Tools: []string{"search"},
	})
	graphs.SeedEdges(id)
}

func TestDeployCreatesFirstVersionAndMarksGraphDeployed(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	owner := graph.Caller{UserID: "owner-1"}

	v, needsRedeploy, err := svc.Deploy(context.Background(), "g1", "", owner)
	require.NoError(t, err)
	require.True(t, needsRedeploy)
	require.Equal(t, 1, v.Version)
	require.Equal(t, "v1", v.Name)
	require.True(t, v.IsActive)
	require.NotEmpty(t, v.Hash)

	g, err := graphs.GetGraph(context.Background(), "g1")
	require.NoError(t, err)
	require.True(t, g.IsDeployed)
	require.NotNil(t, g.DeployedAt)
}

func TestDeployIsNoOpWhenSnapshotUnchanged(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	owner := graph.Caller{UserID: "owner-1"}

	v1, _, err := svc.Deploy(context.Background(), "g1", "", owner)
	require.NoError(t, err)

	v2, needsRedeploy, err := svc.Deploy(context.Background(), "g1", "", owner)
	require.NoError(t, err)
	require.False(t, needsRedeploy)
	require.Equal(t, v1.Version, v2.Version)
}

func TestDeployCreatesNewVersionAfterNodeChange(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	owner := graph.Caller{UserID: "owner-1"}

	_, _, err := svc.Deploy(context.Background(), "g1", "", owner)
	require.NoError(t, err)

	graphs.SeedNodes("g1", &graph.GraphNode{ID: "n2", GraphID: "g1", Type: "agent", Prompt: "also helpful"})
	v2, needsRedeploy, err := svc.Deploy(context.Background(), "g1", "second", owner)
	require.NoError(t, err)
	require.True(t, needsRedeploy)
	require.Equal(t, 2, v2.Version)
	require.Equal(t, "second", v2.Name)
}

func TestDeployForbidsCallerWithoutDeployPermission(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	viewer := graph.Caller{UserID: "someone-else", Role: graph.RoleViewer}

	_, _, err := svc.Deploy(context.Background(), "g1", "", viewer)
	require.Equal(t, apierror.KindForbidden, apierror.KindOf(err))
}

func TestGetDeploymentStatusReportsDriftAfterLiveEdit(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	owner := graph.Caller{UserID: "owner-1"}

	_, _, err := svc.Deploy(context.Background(), "g1", "", owner)
	require.NoError(t, err)

	status, err := svc.GetDeploymentStatus(context.Background(), "g1", owner)
	require.NoError(t, err)
	require.True(t, status.IsDeployed)
	require.False(t, status.NeedsRedeployment)
	require.NotNil(t, status.ActiveVersion)
	require.Equal(t, 1, *status.ActiveVersion)

	graphs.SeedNodes("g1", &graph.GraphNode{ID: "n2", GraphID: "g1", Type: "agent"})
	status, err = svc.GetDeploymentStatus(context.Background(), "g1", owner)
	require.NoError(t, err)
	require.True(t, status.NeedsRedeployment)
}

func TestGetDeploymentStatusNeedsRedeploymentWithoutAnyActiveVersion(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	owner := graph.Caller{UserID: "owner-1"}

	status, err := svc.GetDeploymentStatus(context.Background(), "g1", owner)
	require.NoError(t, err)
	require.True(t, status.NeedsRedeployment)
	require.Nil(t, status.ActiveVersion)
}

func TestRevertToVersionRestoresNodesEdgesAndVariables(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	owner := graph.Caller{UserID: "owner-1"}
	require.NoError(t, graphs.SaveGraph(context.Background(), &graph.Graph{
		ID: "g1", Owner: "owner-1",
		Variables: graph.Variables{Context: map[string]graph.ContextVariable{"topic": {Type: "string", Value: "refunds"}}},
	}))
	graphs.SeedNodes("g1", &graph.GraphNode{ID: "n1", GraphID: "g1", Type: "agent", Prompt: "v1 prompt", Tools: []string{"search"}})

	v1, _, err := svc.Deploy(context.Background(), "g1", "v1", owner)
	require.NoError(t, err)

	// Diverge the live graph: edit the node, change variables, add a node.
	require.NoError(t, graphs.ReplaceNodesAndEdges(context.Background(), "g1",
		[]*graph.GraphNode{{ID: "n1", GraphID: "g1", Type: "agent", Prompt: "edited prompt"}}, nil))
	g, err := graphs.GetGraph(context.Background(), "g1")
	require.NoError(t, err)
	g.Variables = graph.Variables{}
	require.NoError(t, graphs.SaveGraph(context.Background(), g))

	require.NoError(t, svc.RevertToVersion(context.Background(), "g1", v1.Version, owner))

	nodes, err := graphs.ListNodes(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "n1", nodes[0].ID)
	require.Equal(t, "v1 prompt", nodes[0].Prompt)
	require.Equal(t, []string{"search"}, nodes[0].Tools)

	g, err = graphs.GetGraph(context.Background(), "g1")
	require.NoError(t, err)
	require.Equal(t, "refunds", g.Variables.Context["topic"].Resolve())

	status, err := svc.GetDeploymentStatus(context.Background(), "g1", owner)
	require.NoError(t, err)
	require.False(t, status.NeedsRedeployment)
}

func TestRevertToVersionPrefersConfigOverMirrorFields(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	require.NoError(t, graphs.SaveGraph(context.Background(), &graph.Graph{ID: "g1", Owner: "owner-1"}))
	owner := graph.Caller{UserID: "owner-1"}

	node := &graph.GraphNode{
		ID: "n1", GraphID: "g1", Type: "agent", Prompt: "mirror prompt", Tools: []string{"search"},
		Data: map[string]any{"config": map[string]any{"systemPrompt": "config prompt", "tools": []any{"fetch"}}},
	}
	graphs.SeedNodes("g1", node)

	v1, _, err := svc.Deploy(context.Background(), "g1", "v1", owner)
	require.NoError(t, err)

	require.NoError(t, graphs.ReplaceNodesAndEdges(context.Background(), "g1", nil, nil))
	require.NoError(t, svc.RevertToVersion(context.Background(), "g1", v1.Version, owner))

	nodes, err := graphs.ListNodes(context.Background(), "g1")
	require.NoError(t, err)
	require.Equal(t, "config prompt", nodes[0].Prompt)
	require.Equal(t, []string{"fetch"}, nodes[0].Tools)
}

func TestDeleteVersionForbidsDeletingActiveVersion(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	owner := graph.Caller{UserID: "owner-1"}

	v1, _, err := svc.Deploy(context.Background(), "g1", "", owner)
	require.NoError(t, err)

	err = svc.DeleteVersion(context.Background(), "g1", v1.Version, owner)
	require.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestActivateVersionDoesNotMutateLiveNodes(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	owner := graph.Caller{UserID: "owner-1"}

	v1, _, err := svc.Deploy(context.Background(), "g1", "v1", owner)
	require.NoError(t, err)
	graphs.SeedNodes("g1", &graph.GraphNode{ID: "n2", GraphID: "g1", Type: "agent"})
	v2, _, err := svc.Deploy(context.Background(), "g1", "v2", owner)
	require.NoError(t, err)
	require.NotEqual(t, v1.Version, v2.Version)

	require.NoError(t, svc.ActivateVersion(context.Background(), "g1", v1.Version, owner))

	nodes, err := graphs.ListNodes(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, nodes, 2, "activating a version must not touch live nodes/edges")

	status, err := svc.GetDeploymentStatus(context.Background(), "g1", owner)
	require.NoError(t, err)
	require.Equal(t, v1.Version, *status.ActiveVersion)
}

func TestRenameVersionOnlyRequiresViewAccess(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	owner := graph.Caller{UserID: "owner-1"}
	viewer := graph.Caller{UserID: "someone-else", Role: graph.RoleViewer}

	v1, _, err := svc.Deploy(context.Background(), "g1", "", owner)
	require.NoError(t, err)

	require.NoError(t, svc.RenameVersion(context.Background(), "g1", v1.Version, "renamed", viewer))

	got, err := svc.GetVersion(context.Background(), "g1", v1.Version, viewer)
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Name)
}

func TestGetVersionStateProducesFrontendShapes(t *testing.T) {
	svc, graphs, _ := newTestService(t)
	seedGraph(t, graphs, "g1", "owner-1")
	owner := graph.Caller{UserID: "owner-1"}

	v1, _, err := svc.Deploy(context.Background(), "g1", "", owner)
	require.NoError(t, err)

	state, err := svc.GetVersionState(context.Background(), "g1", v1.Version, owner)
	require.NoError(t, err)
	require.Len(t, state.Nodes, 1)
	require.Equal(t, "n1", state.Nodes[0].ID)
}
