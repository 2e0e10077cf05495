package graphruntime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsNodeEvent(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want bool
	}{
		{"explicit node metadata", Event{Type: EventChainStart, Node: "classify", Name: "anything"}, true},
		{"name contains node", Event{Type: EventChainEnd, Name: "router_node"}, true},
		{"name contains node and tool excluded", Event{Type: EventChainEnd, Name: "tool_node_dispatch"}, false},
		{"name contains node and model excluded", Event{Type: EventChainStart, Name: "model_node"}, false},
		{"chain event with unrelated name", Event{Type: EventChainStart, Name: "setup"}, false},
		{"non chain event ignored even with node name", Event{Type: EventToolStart, Name: "some_node"}, false},
		{"case insensitive match", Event{Type: EventChainEnd, Name: "Router_NODE"}, true},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.ev.IsNodeEvent())
		})
	}
}
