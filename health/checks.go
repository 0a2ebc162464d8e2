package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/qsargate/auth"
)

// KeySetStatus exposes the JWKS cache state. auth.JWKSCache implements it.
type KeySetStatus interface {
	URL() string
	Status() auth.JWKSStatus
}

// JWKSChecker reports on the identity provider key set without fetching.
type JWKSChecker struct {
	source KeySetStatus
}

// NewJWKSChecker creates a key set checker.
func NewJWKSChecker(source KeySetStatus) *JWKSChecker {
	return &JWKSChecker{source: source}
}

func (c *JWKSChecker) Name() string { return "jwks" }

// Check is healthy with fresh keys, degraded when keys are stale or not
// yet fetched, and unhealthy when fetching failed with nothing cached.
func (c *JWKSChecker) Check(ctx context.Context) Result {
	st := c.source.Status()
	details := map[string]any{
		"url":     c.source.URL(),
		"keys":    st.Keys,
		"key_ids": st.KeyIDs,
	}
	if !st.FetchedAt.IsZero() {
		details["fetched_at"] = st.FetchedAt.UTC().Format(time.RFC3339)
		details["expires_at"] = st.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if st.LastError != "" {
		details["last_error"] = st.LastError
		details["last_error_at"] = st.LastErrorAt.UTC().Format(time.RFC3339)
	}

	switch {
	case st.Keys > 0 && !st.Stale:
		return Healthy(fmt.Sprintf("%d signing keys cached", st.Keys)).WithDetails(details)
	case st.Keys > 0:
		return Degraded("serving stale signing keys").WithDetails(details)
	case st.LastError != "":
		return Unhealthy("identity provider key set unavailable", ErrDependencyDown).WithDetails(details)
	default:
		return Degraded("key set not fetched yet").WithDetails(details)
	}
}

// PermissionState exposes the permission store. auth.PermissionStore
// implements it.
type PermissionState interface {
	Table() *auth.PermissionTable
	LoadError() error
}

// PermissionsChecker reports on the active permission table.
type PermissionsChecker struct {
	source PermissionState
}

// NewPermissionsChecker creates a permission table checker.
func NewPermissionsChecker(source PermissionState) *PermissionsChecker {
	return &PermissionsChecker{source: source}
}

func (c *PermissionsChecker) Name() string { return "permissions" }

// Check is degraded when the table is empty, since every tool call is then
// denied, or when the last reload failed.
func (c *PermissionsChecker) Check(ctx context.Context) Result {
	t := c.source.Table()
	details := map[string]any{"roles": t.Roles()}
	loadErr := c.source.LoadError()
	if loadErr != nil {
		details["last_error"] = loadErr.Error()
	}

	switch {
	case t.Len() == 0:
		return Degraded("permission table is empty; all tool calls are denied").WithDetails(details)
	case loadErr != nil:
		return Degraded("last permission reload failed; previous table active").WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("%d roles loaded", t.Len())).WithDetails(details)
	}
}

// Pinger checks a remote dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ToolboxChecker checks the QSAR Toolbox API.
type ToolboxChecker struct {
	pinger  Pinger
	baseURL string
}

// NewToolboxChecker creates a toolbox reachability checker.
func NewToolboxChecker(pinger Pinger, baseURL string) *ToolboxChecker {
	return &ToolboxChecker{pinger: pinger, baseURL: baseURL}
}

func (c *ToolboxChecker) Name() string { return "toolbox" }

// detailer is implemented by pingers that report extra state, such as
// the toolbox client's circuit breaker.
type detailer interface {
	HealthDetails() map[string]any
}

// Check is unhealthy when the toolbox cannot be reached, and degraded
// while the circuit breaker is not closed.
func (c *ToolboxChecker) Check(ctx context.Context) Result {
	details := map[string]any{"base_url": c.baseURL}
	if d, ok := c.pinger.(detailer); ok {
		for k, v := range d.HealthDetails() {
			details[k] = v
		}
	}
	if err := c.pinger.Ping(ctx); err != nil {
		return Unhealthy("QSAR Toolbox unreachable", err).WithDetails(details)
	}
	if state, ok := details["circuit_breaker"].(string); ok && state != "closed" {
		return Degraded("QSAR Toolbox reachable, circuit breaker " + state).WithDetails(details)
	}
	return Healthy("QSAR Toolbox reachable").WithDetails(details)
}

var (
	_ Checker = (*JWKSChecker)(nil)
	_ Checker = (*PermissionsChecker)(nil)
	_ Checker = (*ToolboxChecker)(nil)
)
