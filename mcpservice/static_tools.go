package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/ggoodman/dhan-mcp/mcp"
	"github.com/invopop/jsonschema"
)

// InvokeFunc executes a tool whose arguments already passed validation.
type InvokeFunc func(ctx context.Context, args json.RawMessage) Outcome

// Gate is a policy check evaluated before argument validation. A non-nil
// error closes the gate and its message is reported to the caller.
type Gate func() error

// PolicyGate returns a Gate that is open when enabled and otherwise fails
// with reason.
func PolicyGate(enabled bool, reason string) Gate {
	return func() error {
		if enabled {
			return nil
		}
		return errors.New(reason)
	}
}

// Tool pairs an MCP tool descriptor with its gate, validator and executor.
type Tool struct {
	Descriptor mcp.Tool
	Gate       Gate
	Validate   func(args map[string]any) error
	Invoke     InvokeFunc
}

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
	gate        Gate
	validate    func(args map[string]any) error
	schemaEdits []func(*mcp.ToolInputSchema)
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolGate attaches a policy gate.
func WithToolGate(g Gate) ToolOption {
	return func(c *toolConfig) { c.gate = g }
}

// WithToolValidator sets the argument validator. It receives the arguments
// as decoded JSON (map[string]any with float64 numbers).
func WithToolValidator(fn func(args map[string]any) error) ToolOption {
	return func(c *toolConfig) { c.validate = fn }
}

// WithSchemaProperty adjusts one reflected schema property, for constraints
// only known at runtime such as a configured maximum.
func WithSchemaProperty(name string, fn func(p *mcp.SchemaProperty)) ToolOption {
	return func(c *toolConfig) {
		c.schemaEdits = append(c.schemaEdits, func(s *mcp.ToolInputSchema) {
			p, ok := s.Properties[name]
			if !ok {
				return
			}
			fn(&p)
			s.Properties[name] = p
		})
	}
}

// NewTool constructs a Tool from a typed args struct A. It:
//   - reflects a JSON Schema from A using invopop/jsonschema
//   - down-converts it to MCP's simplified ToolInputSchema
//   - wraps fn with JSON decoding of the (already validated) arguments into A
//
// Unknown argument fields are ignored when decoding.
func NewTool[A any](name string, fn func(ctx context.Context, args A) Outcome, opts ...ToolOption) Tool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	input := reflectToMCPInputSchema[A]()
	for _, edit := range cfg.schemaEdits {
		edit(&input)
	}

	invoke := func(ctx context.Context, raw json.RawMessage) Outcome {
		var a A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a); err != nil {
				return invalidArgs("invalid arguments: " + err.Error())
			}
		}
		return fn(ctx, a)
	}

	return Tool{
		Descriptor: mcp.Tool{Name: name, Description: cfg.description, InputSchema: input},
		Gate:       cfg.gate,
		Validate:   cfg.validate,
		Invoke:     invoke,
	}
}

// reflectToMCPInputSchema reflects a Go type A into a jsonschema.Schema and
// converts it to the simplified mcp.ToolInputSchema. Fields without
// omitempty are required.
func reflectToMCPInputSchema[A any]() mcp.ToolInputSchema {
	// ExpandedStruct resolves the root through its definition name, which
	// anonymous struct types do not have.
	named := reflect.TypeOf((*A)(nil)).Elem().Name() != ""
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            named,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(new(A))

	props := make(map[string]mcp.SchemaProperty)
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: props}
	}
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toMCPProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// toMCPProperty maps a jsonschema.Schema leaf to the simplified MCP SchemaProperty.
func toMCPProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Minimum:     s.Minimum,
		Maximum:     s.Maximum,
		Default:     s.Default,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	return p
}
