package deployment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/agentgraph/engine/runtime/graph"
)

// normalize builds a Snapshot from a graph's live node/edge tables. Unlike
// GraphNode.MirrorConfig (which always overwrites data.config from the
// mirror fields on every write), normalize only fills data.config when it
// lacks systemPrompt/tools: an older node saved before data.config became
// authoritative must still produce a snapshot a future revert can restore
// from, without clobbering a config a caller intentionally diverged from
// the mirror fields.
func normalize(nodes []*graph.GraphNode, edges []*graph.GraphEdge, variables graph.Variables, nowMillis int64) Snapshot {
	nodeSnapshots := make(map[string]NodeSnapshot, len(nodes))
	for _, n := range nodes {
		data := deepCopyMap(n.Data)
		config, _ := data["config"].(map[string]any)
		if config == nil {
			config = map[string]any{}
		}
		if _, ok := config["systemPrompt"]; !ok {
			config["systemPrompt"] = n.Prompt
		}
		if _, ok := config["tools"]; !ok {
			config["tools"] = n.Tools
		}
		data["config"] = config

		nodeSnapshots[n.ID] = NodeSnapshot{
			ID:               n.ID,
			Type:             n.Type,
			Tools:            append([]string(nil), n.Tools...),
			Memory:           deepCopyMap(n.Memory),
			Prompt:           n.Prompt,
			Position:         n.Position,
			PositionAbsolute: n.Position,
			Width:            n.Size.Width,
			Height:           n.Size.Height,
			Data:             data,
		}
	}

	edgeSnapshots := make([]EdgeSnapshot, len(edges))
	for i, e := range edges {
		edgeSnapshots[i] = EdgeSnapshot{
			ID: e.ID, Source: e.SourceNodeID, Target: e.TargetNodeID, Data: e.Data,
		}
	}

	return Snapshot{
		Nodes: nodeSnapshots, Edges: edgeSnapshots,
		Variables: variables, LastSaved: nowMillis,
	}
}

// hashSnapshot computes a stable 16-hex-char content hash over snapshot with
// LastSaved excluded, so two snapshots captured at different times but with
// identical graph content hash equal. encoding/json already sorts map keys,
// satisfying the "sort keys" requirement without an extra canonicalization
// pass.
func hashSnapshot(s Snapshot) (string, error) {
	hashable := struct {
		Nodes     map[string]NodeSnapshot `json:"nodes"`
		Edges     []EdgeSnapshot          `json:"edges"`
		Variables graph.Variables         `json:"variables"`
	}{Nodes: s.Nodes, Edges: s.Edges, Variables: s.Variables}

	raw, err := json.Marshal(hashable)
	if err != nil {
		return "", fmt.Errorf("deployment: hash snapshot: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16], nil
}

func deepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			dst[k] = deepCopyMap(nested)
			continue
		}
		dst[k] = v
	}
	return dst
}
