package auth

import (
	"context"

	"github.com/jonwraymond/qsargate/audit"
	"github.com/jonwraymond/qsargate/observe"
)

// RBACConfig configures the role-based authorizer.
type RBACConfig struct {
	// Audit receives one authorization event per decision. Optional.
	Audit *audit.Emitter

	// Metrics counts decisions per role and outcome. Optional.
	Metrics *observe.AuthMetrics

	// Logger receives allow and deny lines.
	Logger observe.Logger
}

// RBACAuthorizer grants a tool when any of the caller's roles lists it in
// the permission table. Roles have no hierarchy. Unknown roles and
// unknown tools are denied.
type RBACAuthorizer struct {
	source  PermissionSource
	audit   *audit.Emitter
	metrics *observe.AuthMetrics
	logger  observe.Logger
}

// NewRBACAuthorizer creates an authorizer reading from source.
func NewRBACAuthorizer(source PermissionSource, config RBACConfig) *RBACAuthorizer {
	logger := config.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &RBACAuthorizer{
		source:  source,
		audit:   config.Audit,
		metrics: config.Metrics,
		logger:  logger.With(observe.Field{Key: "component", Value: "rbac"}),
	}
}

// Name returns "rbac".
func (a *RBACAuthorizer) Name() string {
	return "rbac"
}

// Check reports whether any of roles grants tool.
func (a *RBACAuthorizer) Check(ctx context.Context, roles []string, tool string) bool {
	return a.decide(ctx, "", roles, tool)
}

// Authorize checks req.Subject's roles against req.Tool.
func (a *RBACAuthorizer) Authorize(ctx context.Context, req *AuthzRequest) error {
	if req.Subject == nil {
		a.decide(ctx, "", nil, req.Tool)
		return &AuthzError{Tool: req.Tool, Reason: "no principal"}
	}
	roles := req.Subject.Roles()
	if a.decide(ctx, req.Subject.Subject(), roles, req.Tool) {
		return nil
	}
	return &AuthzError{
		Subject: req.Subject.Subject(),
		Tool:    req.Tool,
		Roles:   roles,
		Reason:  "no role grants this tool",
	}
}

// Permitted lists, for a principal, which of tools it may invoke. Nothing
// is audited; this serves discovery, not invocation.
func (a *RBACAuthorizer) Permitted(p *Principal, tools []string) []string {
	if p == nil {
		return nil
	}
	table := a.source.Table()
	roles := p.Roles()
	out := make([]string, 0, len(tools))
	for _, tool := range tools {
		for _, role := range roles {
			if table.Permits(role, tool) {
				out = append(out, tool)
				break
			}
		}
	}
	return out
}

func (a *RBACAuthorizer) decide(ctx context.Context, subject string, roles []string, tool string) bool {
	table := a.source.Table()

	for _, role := range roles {
		if table.Permits(role, tool) {
			a.logger.Info(ctx, "authorization granted",
				observe.Field{Key: "role", Value: role},
				observe.Field{Key: "tool", Value: tool},
			)
			a.metrics.RecordAuthorization(ctx, role, tool, audit.DecisionAllow)
			a.emit(ctx, subject, roles, tool, audit.DecisionAllow)
			return true
		}
	}

	a.logger.Warn(ctx, "authorization denied",
		observe.Field{Key: "roles", Value: roles},
		observe.Field{Key: "tool", Value: tool},
	)
	for _, role := range roles {
		a.metrics.RecordAuthorization(ctx, role, tool, audit.DecisionDeny)
	}
	a.emit(ctx, subject, roles, tool, audit.DecisionDeny)
	return false
}

func (a *RBACAuthorizer) emit(ctx context.Context, subject string, roles []string, tool, decision string) {
	a.audit.Emit(ctx, audit.Event{
		Type:     audit.TypeAuthorization,
		Tool:     tool,
		UserID:   subject,
		Roles:    roles,
		Decision: decision,
	})
}
