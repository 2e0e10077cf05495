package graph

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentgraph/engine/apierror"
)

// validateContextVariables resolves each declared variable and checks its
// value against the JSON Schema type implied by ContextVariable.Type (empty
// Type skips validation — untyped variables accept anything). A mismatch is
// a caller-facing validation error rather than an internal one: the graph
// author declared the type, and the stored value no longer satisfies it.
func validateContextVariables(graphID string, vars Variables) (map[string]any, error) {
	ctx := make(map[string]any, len(vars.Context))
	for name, v := range vars.Context {
		resolved := v.Resolve()
		if v.Type != "" {
			if err := validateType(v.Type, resolved); err != nil {
				return nil, apierror.Validation("graph.resolve",
					fmt.Sprintf("graph %q context variable %q: %v", graphID, name, err))
			}
		}
		ctx[name] = resolved
	}
	return ctx, nil
}

// validateType compiles a single-keyword {"type": t} schema and validates
// value against it. Schemas are cheap to compile (one keyword, no $refs) and
// not worth caching across calls given GraphResolver.Resolve runs once per
// turn setup.
func validateType(t string, value any) error {
	schemaDoc := map[string]any{"type": t}
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("encode type schema: %w", err)
	}

	const resourceURL = "mem://context-variable-type.json"
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode type schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return fmt.Errorf("add type schema: %w", err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("compile type schema: %w", err)
	}

	// jsonschema validates against the decoded-JSON value shape (float64 for
	// numbers, etc.); round-trip value through JSON so Go-native ints/structs
	// match the same way a value read back from persistence would.
	valueRaw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(valueRaw))
	if err != nil {
		return fmt.Errorf("decode value: %w", err)
	}

	return schema.Validate(decoded)
}
