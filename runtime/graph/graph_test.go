package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMirrorConfigKeepsPromptAndToolsInSync(t *testing.T) {
	n := &GraphNode{
		Prompt: "be helpful",
		Tools:  []string{"search", "calculator"},
	}
	n.MirrorConfig()

	config, ok := n.Data["config"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "be helpful", config["systemPrompt"])
	require.Equal(t, []string{"search", "calculator"}, config["tools"])
}

func TestMirrorConfigPreservesExistingConfigFields(t *testing.T) {
	n := &GraphNode{
		Prompt: "updated prompt",
		Data: map[string]any{
			"config": map[string]any{
				"temperature": 0.7,
			},
		},
	}
	n.MirrorConfig()

	config := n.Data["config"].(map[string]any)
	require.Equal(t, 0.7, config["temperature"])
	require.Equal(t, "updated prompt", config["systemPrompt"])
}

func TestContextVariableResolveUnwrapsValueWrapper(t *testing.T) {
	wrapped := ContextVariable{Type: "string", Value: map[string]any{"value": "hello"}}
	require.Equal(t, "hello", wrapped.Resolve())

	scalar := ContextVariable{Type: "number", Value: 42}
	require.Equal(t, 42, scalar.Resolve())
}

func TestCallerAccess(t *testing.T) {
	owner := Caller{UserID: "u1"}
	viewer := Caller{UserID: "u2", Role: RoleViewer}
	stranger := Caller{UserID: "u3", Role: RoleNone}
	deployer := Caller{UserID: "u4", Role: RoleDeployer}

	require.True(t, owner.CanView("u1"))
	require.True(t, viewer.CanView("u1"))
	require.False(t, stranger.CanView("u1"))

	require.False(t, viewer.CanDeploy("u1"))
	require.True(t, deployer.CanDeploy("u1"))
	require.True(t, owner.CanDeploy("u1"))
}
