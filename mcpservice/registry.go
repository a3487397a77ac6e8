package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/dhan-mcp/mcp"
)

// Registry is an ordered, immutable set of tools keyed by name. It is safe
// for concurrent use because nothing mutates it after NewRegistry returns.
type Registry struct {
	tools  []Tool
	byName map[string]int
}

// NewRegistry builds a Registry from tools in the given order. Empty or
// duplicate names and missing executors are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:  make([]Tool, 0, len(tools)),
		byName: make(map[string]int, len(tools)),
	}
	for _, t := range tools {
		name := t.Descriptor.Name
		if name == "" {
			return nil, fmt.Errorf("tool at position %d has no name", len(r.tools))
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		if t.Invoke == nil {
			return nil, fmt.Errorf("tool %q has no executor", name)
		}
		r.byName[name] = len(r.tools)
		r.tools = append(r.tools, t)
	}
	return r, nil
}

// List returns the tool descriptors in registration order.
func (r *Registry) List() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Descriptor
	}
	return out
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// Invoke runs the named tool: lookup, gate, validation, then execution. The
// gate runs before any inspection of args so a closed gate cannot be probed
// with malformed input. A panicking executor yields OutcomeInternalFailure.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (out Outcome) {
	t, ok := r.Lookup(name)
	if !ok {
		return unknownTool(name)
	}

	if t.Gate != nil {
		if err := t.Gate(); err != nil {
			return disabled(err.Error())
		}
	}

	values, err := decodeArguments(args)
	if err != nil {
		return invalidArgs(err.Error())
	}
	if t.Validate != nil {
		if err := t.Validate(values); err != nil {
			return invalidArgs(err.Error())
		}
	}
	// Validators may fill defaults, so the executor sees values re-encoded
	// after validation.
	raw, err := json.Marshal(values)
	if err != nil {
		return invalidArgs("arguments must be an object: " + err.Error())
	}

	defer func() {
		if p := recover(); p != nil {
			out = InternalFailure(fmt.Errorf("tool %s panicked: %v", name, p))
		}
	}()
	return t.Invoke(ctx, raw)
}

// decodeArguments treats absent and null arguments as an empty object and
// rejects anything that is not a JSON object. Invoke re-encodes the decoded
// values, so integral floats such as 5.0 decode into integer fields.
func decodeArguments(args json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("arguments must be an object")
	}
	var values map[string]any
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, fmt.Errorf("arguments must be an object: %v", err)
	}
	return values, nil
}
