package graph

import (
	"context"
	"fmt"

	"github.com/agentgraph/engine/apierror"
	"github.com/agentgraph/engine/runtime/graphruntime"
)

type (
	// LLMParams are the caller-supplied model parameters used both to
	// configure the builtin single-node fallback and to pass through to an
	// externally compiled runtime for credential and model resolution.
	LLMParams struct {
		Model        string
		SystemPrompt string
		MaxTokens    int
		Temperature  float64
	}

	// Compiler builds a graphruntime.Runtime from a graph's node/edge tables.
	// Compilation itself (node dispatch, tool wiring, model binding) is
	// external to this package; the resolver only loads the tables,
	// authorizes the caller, and passes them through along with llmParams
	// and ownerID (used by the compiled runtime for credential resolution
	// inside tools).
	Compiler interface {
		Compile(ctx context.Context, g *Graph, nodes []*GraphNode, edges []*GraphEdge, llmParams LLMParams, ownerID string) (graphruntime.Runtime, error)
	}

	// BuiltinFactory produces the default single-node runtime used when
	// graphID is empty, configured from llmParams alone.
	BuiltinFactory interface {
		Builtin(llmParams LLMParams) (graphruntime.Runtime, error)
	}

	// Resolved is a GraphResolver's output: a runtime ready to drive one
	// turn, and the context map seeded from the graph's declared variables
	// (empty for the builtin fallback, which has no declared variables).
	Resolved struct {
		Runtime graphruntime.Runtime
		Context map[string]any
	}

	// Resolver implements the GraphResolver: given a graph id, caller, and
	// llm params, it loads the graph, authorizes the caller, and compiles a
	// runtime.
	Resolver struct {
		store    Store
		compiler Compiler
		builtin  BuiltinFactory
	}
)

// NewResolver constructs a Resolver. compiler and builtin must not be nil.
func NewResolver(store Store, compiler Compiler, builtin BuiltinFactory) *Resolver {
	return &Resolver{store: store, compiler: compiler, builtin: builtin}
}

// Resolve loads graphID (or the builtin default if graphID is empty),
// authorizes caller against it, compiles a runtime, and seeds the context
// map from the graph's declared context variables.
func (r *Resolver) Resolve(ctx context.Context, graphID string, caller Caller, llmParams LLMParams) (*Resolved, error) {
	if graphID == "" {
		rt, err := r.builtin.Builtin(llmParams)
		if err != nil {
			return nil, apierror.Internal("graph.resolve", fmt.Errorf("compile builtin runtime: %w", err))
		}
		return &Resolved{Runtime: rt, Context: map[string]any{}}, nil
	}

	g, err := r.store.GetGraph(ctx, graphID)
	if err != nil {
		return nil, translateErr("graph.resolve", err)
	}

	if !caller.CanView(g.Owner) {
		return nil, apierror.Forbidden("graph.resolve", "caller lacks a role on this graph")
	}

	nodes, err := r.store.ListNodes(ctx, graphID)
	if err != nil {
		return nil, translateErr("graph.resolve", err)
	}
	edges, err := r.store.ListEdges(ctx, graphID)
	if err != nil {
		return nil, translateErr("graph.resolve", err)
	}

	rt, err := r.compiler.Compile(ctx, g, nodes, edges, llmParams, g.Owner)
	if err != nil {
		return nil, apierror.Internal("graph.resolve", fmt.Errorf("compile graph %q: %w", graphID, err))
	}

	seeded, err := validateContextVariables(graphID, g.Variables)
	if err != nil {
		return nil, err
	}
	return &Resolved{Runtime: rt, Context: seeded}, nil
}

func translateErr(op string, err error) error {
	if err == ErrNotFound {
		return apierror.NotFound(op, "graph not found")
	}
	return apierror.Internal(op, err)
}
