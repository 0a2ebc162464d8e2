package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jonwraymond/qsargate/audit"
	"github.com/jonwraymond/qsargate/auth"
	"github.com/jonwraymond/qsargate/cache"
	"github.com/jonwraymond/qsargate/observe"
)

// Authorizer grants tool invocations and filters tool discovery.
type Authorizer interface {
	Authorize(ctx context.Context, req *auth.AuthzRequest) error
	Permitted(p *auth.Principal, tools []string) []string
}

// Ensure RBACAuthorizer satisfies Authorizer
var _ Authorizer = (*auth.RBACAuthorizer)(nil)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// Authorizer is required. Every call is denied without one.
	Authorizer Authorizer

	// Audit receives tool_execution events. Optional.
	Audit *audit.Emitter

	// Observe wraps execution with tracing, metrics and a log line.
	// Default: no-op middleware.
	Observe *observe.Middleware

	// Cache serves repeated calls to read-only tools. Optional.
	Cache *cache.Middleware

	Logger observe.Logger
}

// Pipeline runs tool calls: lookup, authorization, validation, execution.
// A call is executed at most once; retries belong to the tool itself.
type Pipeline struct {
	registry *Registry
	authz    Authorizer
	audit    *audit.Emitter
	cache    *cache.Middleware
	exec     observe.ExecuteFunc
	logger   observe.Logger
}

// NewPipeline creates a pipeline over registry.
func NewPipeline(registry *Registry, cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	mw := cfg.Observe
	if mw == nil {
		mw = observe.NewMiddleware(nil, nil, logger)
	}
	p := &Pipeline{
		registry: registry,
		authz:    cfg.Authorizer,
		audit:    cfg.Audit,
		cache:    cfg.Cache,
		logger:   logger.With(observe.Field{Key: "component", Value: "pipeline"}),
	}
	p.exec = mw.Wrap(p.invoke)
	return p
}

// Registry returns the registry the pipeline reads from.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// ListDefinitions returns the tools principal may invoke, in registration
// order. A nil principal sees nothing.
func (p *Pipeline) ListDefinitions(principal *auth.Principal) []mcp.Tool {
	if principal == nil || p.authz == nil {
		return []mcp.Tool{}
	}
	return p.registry.Definitions(p.authz.Permitted(principal, p.registry.Names()))
}

// Call runs one tool call for principal. Failures are *Error values.
// A result served from the cache is returned as json.RawMessage.
func (p *Pipeline) Call(ctx context.Context, principal *auth.Principal, name string, args map[string]any) (any, error) {
	tool, ok := p.registry.Get(name)
	if !ok {
		p.logger.Warn(ctx, "unknown tool requested", observe.Field{Key: "tool", Value: name})
		return nil, &Error{
			Kind:    KindToolNotFound,
			Tool:    name,
			Message: fmt.Sprintf("Tool '%s' not found.", name),
		}
	}

	if err := p.authorize(ctx, principal, name); err != nil {
		p.emit(ctx, principal, name, audit.StatusForbidden, "", "")
		return nil, &Error{
			Kind:    KindForbidden,
			Tool:    name,
			Message: fmt.Sprintf("Access denied to tool '%s'.", name),
			Cause:   err,
		}
	}

	if args == nil {
		args = map[string]any{}
	}
	violations, err := validateArgs(tool.schema, args)
	if err != nil {
		return nil, &Error{
			Kind:    KindInvalidParameters,
			Tool:    name,
			Message: "Invalid tool parameters.",
			Cause:   err,
		}
	}
	if len(violations) > 0 {
		return nil, &Error{
			Kind:    KindInvalidParameters,
			Tool:    name,
			Message: "Invalid tool parameters.",
			Details: violations,
		}
	}

	result, err := p.execute(ctx, tool, args)
	if err != nil {
		p.emit(ctx, principal, name, audit.StatusError, "", err.Error())
		return nil, &Error{
			Kind:    KindExecution,
			Tool:    name,
			Message: fmt.Sprintf("Error during execution of tool '%s'.", name),
			Details: truncate(err.Error(), maxErrorDetail),
			Cause:   err,
		}
	}

	p.emit(ctx, principal, name, audit.StatusSuccess, summarize(args), "")
	return result, nil
}

func (p *Pipeline) authorize(ctx context.Context, principal *auth.Principal, name string) error {
	if p.authz == nil {
		return errors.New("no authorizer configured")
	}
	return p.authz.Authorize(ctx, &auth.AuthzRequest{Subject: principal, Tool: name})
}

func (p *Pipeline) execute(ctx context.Context, tool *Tool, args map[string]any) (any, error) {
	meta := observe.ToolMeta{
		Name:     tool.Definition.Name,
		Category: tool.Category,
		Tags:     tool.Tags,
	}
	if !p.cache.Cacheable(meta.Name, tool.Tags) {
		return p.exec(ctx, meta, args)
	}

	out, hit, err := p.cache.Execute(ctx, meta.Name, args, tool.Tags,
		func(ctx context.Context, _ string, _ any) ([]byte, error) {
			v, err := p.exec(ctx, meta, args)
			if err != nil {
				return nil, err
			}
			return json.Marshal(v)
		})
	if err != nil {
		return nil, err
	}
	if hit {
		p.logger.Debug(ctx, "tool result served from cache", observe.Field{Key: "tool", Value: meta.Name})
	}
	return json.RawMessage(out), nil
}

// invoke is the innermost step, wrapped by the observe middleware.
func (p *Pipeline) invoke(ctx context.Context, meta observe.ToolMeta, input any) (any, error) {
	tool, ok := p.registry.Get(meta.Name)
	if !ok {
		return nil, fmt.Errorf("tool %q disappeared from registry", meta.Name)
	}
	args, _ := input.(map[string]any)
	return tool.fn(ctx, args)
}

func (p *Pipeline) emit(ctx context.Context, principal *auth.Principal, tool, status, params, errMsg string) {
	p.audit.Emit(ctx, audit.Event{
		Type:   audit.TypeToolExecution,
		UserID: principal.Subject(),
		Tool:   tool,
		Roles:  principal.Roles(),
		Status: status,
		Params: params,
		Error:  truncate(errMsg, maxErrorDetail),
	})
}

// summarize renders args for the audit trail.
func summarize(args map[string]any) string {
	data, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return ""
	}
	return audit.Truncate(string(data), audit.MaxParamsLength)
}
