// Package tool implements the L2 tool registry (spec §4.2): name-addressed
// descriptors with eager JSON Schema validation and built-in/custom namespace
// separation with quarantine-on-conflict. The per-dialect tool wire formats
// are produced by the provider packages from model.ToolDescriptor.
//
// Grounded on internal/agent/tool_registry.go of the teacher repo.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// Executor runs a tool call against a session-scoped capability view
// (spec §9: "session hands the tool a narrow view, ToolCtx").
type Executor func(ctx context.Context, args json.RawMessage, tc *Ctx) (string, error)

// Ctx is the narrow capability view a tool executor receives. It exposes
// only the operations tools need, breaking the session/tool ownership
// cycle the teacher's design note calls out (spec §9).
type Ctx struct {
	SessionID string
	Role      model.Role
}

// Descriptor is one registered tool.
type Descriptor struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Builtin     bool
	Execute     Executor
}

// AsModel converts d to the wire-visible shape shared with providers.
func (d Descriptor) AsModel() model.ToolDescriptor {
	return model.ToolDescriptor{Name: d.Name, Description: d.Description, Parameters: d.Schema, Builtin: d.Builtin}
}

// QuarantineEntry records a tool rejected at load time, with its reason.
type QuarantineEntry struct {
	Name   string
	Reason string
}

// Registry is a thread-safe name→Descriptor map.
type Registry struct {
	mu          sync.RWMutex
	builtins    map[string]Descriptor
	custom      map[string]Descriptor
	quarantined []QuarantineEntry

	// OnExecute, when set, is called after every Execute with the tool name
	// and whether it returned a tool-error string, for metrics wiring.
	OnExecute func(name string, isError bool)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builtins: map[string]Descriptor{}, custom: map[string]Descriptor{}}
}

// RegisterBuiltin registers a built-in tool. Built-ins are trusted and not
// schema-validated against the quarantine path (they are code, not data),
// but malformed schemas still fail fast since they are a programmer error.
func (r *Registry) RegisterBuiltin(d Descriptor) error {
	if err := ValidateSchema(d.Schema); err != nil {
		return fmt.Errorf("tool %q: %w", d.Name, err)
	}
	d.Builtin = true
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[d.Name] = d
	return nil
}

// RegisterCustom registers a user-supplied tool, applying the load rules of
// spec §4.2: name collision with a built-in or an already-loaded custom
// tool results in quarantine (the caller is told why) rather than an error
// that would abort startup.
func (r *Registry) RegisterCustom(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, isBuiltin := r.builtins[d.Name]; isBuiltin {
		r.quarantined = append(r.quarantined, QuarantineEntry{Name: d.Name, Reason: "shadows a built-in tool"})
		return
	}
	if _, exists := r.custom[d.Name]; exists {
		r.quarantined = append(r.quarantined, QuarantineEntry{Name: d.Name, Reason: "duplicate custom tool name; first-loaded wins"})
		return
	}
	if err := ValidateSchema(d.Schema); err != nil {
		r.quarantined = append(r.quarantined, QuarantineEntry{Name: d.Name, Reason: err.Error()})
		return
	}
	r.custom[d.Name] = d
}

// Quarantined returns the tools rejected at load time.
func (r *Registry) Quarantined() []QuarantineEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]QuarantineEntry(nil), r.quarantined...)
}

// Get looks up a tool by name across both namespaces.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.builtins[name]; ok {
		return d, true
	}
	d, ok := r.custom[name]
	return d, ok
}

// All returns every registered tool, built-ins first.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.builtins)+len(r.custom))
	for _, d := range r.builtins {
		out = append(out, d)
	}
	for _, d := range r.custom {
		out = append(out, d)
	}
	return out
}

// FilterByOutfit intersects the full tool set with an outfit's allow-list
// (spec §4.2: "session advertises only the intersection"). A nil or empty
// allow-list means no restriction.
func (r *Registry) FilterByOutfit(allow []string) []Descriptor {
	all := r.All()
	if len(allow) == 0 {
		return all
	}
	out := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if matchesAny(d.Name, allow) {
			out = append(out, d)
		}
	}
	return out
}

// matchesAny supports exact names, "mcp:*" prefix wildcards, and "name.*"
// suffix wildcards, grounded on the teacher's matchToolPattern.
func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchPattern(name, pattern) {
			return true
		}
	}
	return false
}

func matchPattern(name, pattern string) bool {
	if pattern == name {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// Execute runs the named tool's executor, wrapping a returned error into
// the spec §7 ToolError shape rather than letting it abort the round.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, tc *Ctx) (string, bool) {
	d, ok := r.Get(name)
	if !ok {
		if r.OnExecute != nil {
			r.OnExecute(name, true)
		}
		return fmt.Sprintf("Error: unknown tool %q", name), true
	}
	result, err := d.Execute(ctx, args, tc)
	isError := err != nil
	if r.OnExecute != nil {
		r.OnExecute(name, isError)
	}
	if isError {
		return fmt.Sprintf("Error: %v", err), true
	}
	return result, false
}

// ValidateSchema enforces spec §4.2's eager validation rules: top-level
// type is required and in the allowed set, every property and array.items
// carries a type, and required is a subset of properties.
func ValidateSchema(schema json.RawMessage) error {
	if len(schema) == 0 {
		return fmt.Errorf("schema is required")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(schema))); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	if _, err := compiler.Compile("schema.json"); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	var parsed struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
		Items      json.RawMessage            `json:"items"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	if !validType(parsed.Type) {
		return fmt.Errorf("schema type %q is not one of string|number|integer|boolean|array|object", parsed.Type)
	}
	for propName, propSchema := range parsed.Properties {
		if err := requireType(propSchema); err != nil {
			return fmt.Errorf("property %q: %w", propName, err)
		}
	}
	if parsed.Type == "array" && len(parsed.Items) > 0 {
		if err := requireType(parsed.Items); err != nil {
			return fmt.Errorf("array.items: %w", err)
		}
	}
	props := map[string]bool{}
	for name := range parsed.Properties {
		props[name] = true
	}
	for _, req := range parsed.Required {
		if !props[req] {
			return fmt.Errorf("required field %q is not declared in properties", req)
		}
	}
	return nil
}

func requireType(raw json.RawMessage) error {
	var v struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if !validType(v.Type) {
		return fmt.Errorf("missing or invalid type")
	}
	return nil
}

func validType(t string) bool {
	switch t {
	case "string", "number", "integer", "boolean", "array", "object":
		return true
	default:
		return false
	}
}
