// ABOUTME: Tool definitions and the registry that dispatch looks them up in
// ABOUTME: Each tool declares its schema, required scope, tier and audit behaviour

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/inline"
)

// Tier classifies a tool's side effects.
type Tier int

const (
	TierReadOnly Tier = iota
	TierMutating
)

func (t Tier) String() string {
	if t == TierReadOnly {
		return "read-only"
	}
	return "mutating"
}

// Call is one tools/call invocation as seen by a handler.
type Call struct {
	Tool   string
	Args   Args
	Grant  *auth.Grant
	Client inline.Client
}

// Handler runs a tool. The returned value is rendered as the result's JSON.
type Handler func(ctx context.Context, call *Call) (any, error)

// Tool is a registered tool.
type Tool struct {
	Name          string
	Title         string
	Description   string
	Schema        *jsonschema.Schema
	RequiredScope string
	Tier          Tier
	OpenWorld     bool
	// Audited tools emit exactly one send-audit record per invocation.
	Audited bool
	Handler Handler

	resolved *jsonschema.Resolved
}

// Definition returns the tools/list entry for the tool, including its
// behaviour hints.
func (t *Tool) Definition() (mcp.Tool, error) {
	raw, err := json.Marshal(t.Schema)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("encoding schema for %s: %w", t.Name, err)
	}
	def := mcp.NewToolWithRawSchema(t.Name, t.Description, raw)
	def.Annotations = mcp.ToolAnnotation{
		Title:           t.Title,
		ReadOnlyHint:    mcp.ToBoolPtr(t.Tier == TierReadOnly),
		DestructiveHint: mcp.ToBoolPtr(false),
		IdempotentHint:  mcp.ToBoolPtr(t.Tier == TierReadOnly),
		OpenWorldHint:   mcp.ToBoolPtr(t.OpenWorld),
	}
	return def, nil
}

// Registry maps tool names to tools.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds t after resolving its schema.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" || t.Handler == nil || t.Schema == nil {
		return fmt.Errorf("tool %q: name, schema and handler are required", t.Name)
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	resolved, err := t.Schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("tool %q: resolving schema: %w", t.Name, err)
	}
	t.resolved = resolved
	r.tools[t.Name] = t
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns every tool sorted by name.
func (r *Registry) Tools() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definitions returns the tools/list entries in name order.
func (r *Registry) Definitions() ([]mcp.Tool, error) {
	tools := r.Tools()
	defs := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		def, err := t.Definition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
