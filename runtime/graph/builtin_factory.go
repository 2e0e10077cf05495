package graph

import (
	"github.com/agentgraph/engine/runtime/graphruntime"
	"github.com/agentgraph/engine/runtime/graphruntime/builtin"
)

// BuiltinAdapter adapts the builtin single-node GraphRuntime into a
// BuiltinFactory, constructing a fresh Runtime from the resolver's llmParams
// on every call (the builtin runtime holds no per-turn state beyond its
// Params).
type BuiltinAdapter struct {
	Client builtin.MessagesClient
}

// Builtin constructs a builtin.Runtime configured from llmParams.
func (a BuiltinAdapter) Builtin(llmParams LLMParams) (graphruntime.Runtime, error) {
	return builtin.New(a.Client, builtin.Params{
		Model:        llmParams.Model,
		SystemPrompt: llmParams.SystemPrompt,
		MaxTokens:    llmParams.MaxTokens,
		Temperature:  llmParams.Temperature,
	})
}
