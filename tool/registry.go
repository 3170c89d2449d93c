package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry is a closed mapping from tool name to Tool plus its compiled
// argument schema. It is immutable after construction and safe for
// concurrent use.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	order   []string
}

// NewRegistry compiles every tool schema once and rejects empty or
// duplicate names.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]Tool, len(tools)),
		schemas: make(map[string]*jsonschema.Schema, len(tools)),
	}

	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool name must not be empty")
		}

		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}

		schema, err := compileSchema(name, t.Parameters())
		if err != nil {
			return nil, err
		}

		r.tools[name] = t
		r.schemas[name] = schema
		r.order = append(r.order, name)
	}

	return r, nil
}

// MustRegistry is like NewRegistry but panics on error. Intended for static catalogs.
func MustRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %q: %w", name, err)
	}

	url := "mem://tools/" + name + ".json"

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", name, err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", name, err)
	}

	return schema, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Subset returns a registry restricted to names, in the given order. Every
// name must be registered.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	sub := &Registry{
		tools:   make(map[string]Tool, len(names)),
		schemas: make(map[string]*jsonschema.Schema, len(names)),
	}

	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}

		if _, dup := sub.tools[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}

		sub.tools[name] = t
		sub.schemas[name] = r.schemas[name]
		sub.order = append(sub.order, name)
	}

	return sub, nil
}

// Validate checks args against the schema of tool name.
func (r *Registry) Validate(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	// The validator expects generic JSON values.
	var doc any = map[string]any{}
	if args != nil {
		doc = toJSONValue(args)
	}

	if err := schema.Validate(doc); err != nil {
		return &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	return nil
}

// Call validates args and invokes tool name.
func (r *Registry) Call(toolCtx *Context, name string, args map[string]any) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if err := r.Validate(name, args); err != nil {
		return "", err
	}

	return t.Call(toolCtx, args)
}

// toJSONValue converts Go values into the shapes produced by encoding/json.
func toJSONValue(v map[string]any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}

	return out
}
