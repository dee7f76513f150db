package counsel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
)

// ToolParameter declares one parameter of a tool function.
// Type is a JSON-schema primitive: "string", "number", "integer" or "boolean".
type ToolParameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
}

// ToolDefinition declares a tool function: its name, what it does, and its
// ordered parameters. The provider-facing JSON schema and the argument
// validation are both derived from this one declaration.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// Schema renders the declaration as a JSON-schema object for provider
// function signatures:
//
//	{"type":"object","properties":{...},"required":[...]}
func (d ToolDefinition) Schema() json.RawMessage {
	properties := make(map[string]any, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	if err != nil {
		// Only plain maps and strings above; this cannot fail.
		panic(fmt.Sprintf("tool %s: marshal schema: %v", d.Name, err))
	}
	return schema
}

// ValidateArgs checks args against the declared parameters before any side
// effect: missing required parameters, type mismatches (integer accepts
// integral JSON numbers) and enum violations all fail fast.
func (d ToolDefinition) ValidateArgs(args json.RawMessage) error {
	values := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &values); err != nil {
			return fmt.Errorf("参数格式错误: %w", err)
		}
	}
	for _, p := range d.Parameters {
		v, present := values[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("缺少必需参数: %s", p.Name)
			}
			continue
		}
		if !matchesType(v, p.Type) {
			return fmt.Errorf("参数 %s 类型错误: 期望 %s, 实际 %s", p.Name, p.Type, jsonTypeName(v))
		}
		if len(p.Enum) > 0 {
			s, ok := v.(string)
			if !ok || !containsString(p.Enum, s) {
				return fmt.Errorf("参数 %s 值无效: %v, 允许值: %v", p.Name, v, p.Enum)
			}
		}
	}
	return nil
}

// matchesType checks a decoded JSON value against a declared parameter type.
// Unknown types are skipped, matching the permissive behavior callers expect
// from schema-light providers.
func matchesType(v any, declared string) bool {
	switch declared {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && math.Trunc(f) == f
	case "boolean":
		_, ok := v.(bool)
		return ok
	default:
		return true
	}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	case []any:
		return "array"
	default:
		return "object"
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Tool defines a capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution. Content carries the JSON
// success payload; Error carries a descriptive failure the model can read.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ToolRegistry is the process-wide name→tool table. Registration is
// last-wins per function name; lookups and batch schema accessors are safe
// for concurrent use, so late registration is a single atomic insert.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	defs  map[string]ToolDefinition
	order []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
		defs:  make(map[string]ToolDefinition),
	}
}

// Add registers every function the tool defines. Re-registering a name
// replaces the previous owner but keeps its position in the catalog order.
func (r *ToolRegistry) Add(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range t.Definitions() {
		if _, seen := r.tools[d.Name]; !seen {
			r.order = append(r.order, d.Name)
		}
		r.tools[d.Name] = t
		r.defs[d.Name] = d
	}
}

// Get returns the tool owning the named function.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether the named function is registered.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// AllDefinitions returns every registered definition in registration order.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.defs[name])
	}
	return defs
}

// DefinitionsFor returns the definitions for a named subset, preserving the
// requested order and silently skipping names that are not registered. This
// is how a specialist's allowed-tool list is scoped into a model call.
func (r *ToolRegistry) DefinitionsFor(names []string) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []ToolDefinition
	for _, name := range names {
		if d, ok := r.defs[name]; ok {
			defs = append(defs, d)
		}
	}
	return defs
}

// Execute dispatches a tool call by name. An unregistered name is not an
// error: it yields a ToolResult whose Error field carries the diagnostic, so
// callers can surface it to the model instead of failing the turn.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.Get(name)
	if !ok {
		return ToolResult{Error: "工具 " + name + " 不存在"}, nil
	}
	return t.Execute(ctx, name, args)
}
