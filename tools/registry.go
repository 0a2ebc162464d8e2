package tools

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/jonwraymond/qsargate/cache"
)

// Func runs a tool with arguments that already passed schema validation.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Tool is a registered tool.
type Tool struct {
	Definition mcp.Tool
	Category   string
	Tags       []string

	fn     Func
	schema *jsonschema.Schema
}

// ReadOnly reports whether the tool is tagged cache.ReadOnlyTag.
func (t *Tool) ReadOnly() bool {
	return slices.Contains(t.Tags, cache.ReadOnlyTag)
}

// Option configures a registration.
type Option func(*Tool)

// WithTags adds tags.
func WithTags(tags ...string) Option {
	return func(t *Tool) {
		for _, tag := range tags {
			if !slices.Contains(t.Tags, tag) {
				t.Tags = append(t.Tags, tag)
			}
		}
	}
}

// WithCategory sets the telemetry category.
func WithCategory(category string) Option {
	return func(t *Tool) { t.Category = category }
}

// ReadOnly marks the tool's result as depending only on its arguments,
// which makes it eligible for result caching.
func ReadOnly() Option {
	return func(t *Tool) {
		WithTags(cache.ReadOnlyTag)(t)
		readOnly := true
		t.Definition.Annotations.ReadOnlyHint = &readOnly
	}
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidName reports whether name is snake_case: lowercase letters, digits
// and underscores, starting with a letter.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Registry holds tools by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool built from its parts.
func (r *Registry) Register(name, description string, schema mcp.ToolInputSchema, fn Func, opts ...Option) error {
	def := mcp.NewTool(name, mcp.WithDescription(description))
	def.InputSchema = schema
	return r.RegisterTool(def, fn, opts...)
}

// RegisterTool adds a tool from a complete MCP definition. The name must be
// snake_case and unused, and the input schema must compile.
func (r *Registry) RegisterTool(def mcp.Tool, fn Func, opts ...Option) error {
	if !ValidName(def.Name) {
		return fmt.Errorf("%w: %q must be snake_case", ErrInvalidName, def.Name)
	}
	if fn == nil {
		return fmt.Errorf("tools: %s: nil implementation", def.Name)
	}
	if def.InputSchema.Type == "" {
		def.InputSchema.Type = "object"
	}

	t := &Tool{Definition: def, fn: fn}
	for _, opt := range opts {
		opt(t)
	}

	schema, err := compileSchema(t.Definition.InputSchema)
	if err != nil {
		return fmt.Errorf("tools: %s: %w", def.Name, err)
	}
	t.schema = schema

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[def.Name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}
	r.tools[def.Name] = t
	r.order = append(r.order, def.Name)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions returns the MCP definitions of the named tools, in the order
// given. Unknown names are skipped.
func (r *Registry) Definitions(names []string) []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			out = append(out, t.Definition)
		}
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
