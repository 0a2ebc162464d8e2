package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jonwraymond/qsargate/observe"
)

// Verifier validates a bearer token and returns its claims.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: failures wrap the package sentinels so the gate can classify them.
type Verifier interface {
	Verify(ctx context.Context, token string, forceRefresh bool) (map[string]any, error)
}

// Ensure TokenVerifier implements Verifier
var _ Verifier = (*TokenVerifier)(nil)

// GateConfig configures the authentication gate.
type GateConfig struct {
	// Bypass disables authentication. Every request gets the bypass
	// principal. Never enable outside local development.
	Bypass bool

	// RoleClaimPath is the dot path to the roles claim.
	// Default: "roles"
	RoleClaimPath string

	// HeaderName is the header carrying the bearer token.
	// Default: "Authorization"
	HeaderName string

	// Logger receives bypass and verification warnings.
	Logger observe.Logger

	// Metrics records authentication outcomes. Optional.
	Metrics *observe.AuthMetrics
}

// Gate turns request credentials into a Principal or a classified *Error.
type Gate struct {
	config   GateConfig
	verifier Verifier
	rolePath ClaimPath
	logger   observe.Logger
}

// NewGate creates an authentication gate. A nil verifier with bypass off
// makes every authentication fail with KindMisconfigured.
func NewGate(config GateConfig, verifier Verifier) *Gate {
	if config.HeaderName == "" {
		config.HeaderName = "Authorization"
	}
	logger := config.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Gate{
		config:   config,
		verifier: verifier,
		rolePath: ParseClaimPath(config.RoleClaimPath),
		logger:   logger.With(observe.Field{Key: "component", Value: "auth"}),
	}
}

// BypassEnabled reports whether the gate skips verification.
func (g *Gate) BypassEnabled() bool {
	return g.config.Bypass
}

// AuthenticateRequest authenticates r and stores the principal in the
// request slot, if one is installed.
func (g *Gate) AuthenticateRequest(r *http.Request) (*Principal, *Error) {
	p, err := g.Authenticate(r.Context(), r.Header.Get(g.config.HeaderName))
	if err != nil {
		return nil, err
	}
	SlotFromContext(r.Context()).Set(p)
	return p, nil
}

// Authenticate resolves the Authorization header value to a principal.
//
// A token signed with an unknown key id gets exactly one retry against a
// force-refreshed key set, to follow identity provider key rotation. No
// other failure is retried.
func (g *Gate) Authenticate(ctx context.Context, authorization string) (*Principal, *Error) {
	if g.config.Bypass {
		g.logger.Warn(ctx, "authentication bypassed; do not run this configuration in production",
			observe.Field{Key: "subject", Value: BypassSubject})
		g.config.Metrics.RecordAuthentication(ctx, "bypass")
		return BypassPrincipal(), nil
	}

	if g.verifier == nil {
		g.logger.Error(ctx, "authentication enabled but OIDC issuer or audience not configured")
		g.config.Metrics.RecordAuthentication(ctx, KindMisconfigured.String())
		return nil, newError(KindMisconfigured, "Authentication service misconfigured", ErrMisconfigured)
	}

	token, ok := bearerToken(authorization)
	if !ok {
		g.config.Metrics.RecordAuthentication(ctx, KindUnauthenticated.String())
		return nil, newError(KindUnauthenticated, "Not authenticated (Bearer token missing)", ErrMissingCredentials)
	}

	claims, err := g.verifier.Verify(ctx, token, false)
	if errors.Is(err, ErrKeyNotFound) {
		g.logger.Info(ctx, "token key id not in cached key set, refreshing JWKS")
		claims, err = g.verifier.Verify(ctx, token, true)
		if err != nil {
			return nil, g.fail(ctx, newError(KindUnauthenticated, "Invalid token (signing key not found)", err))
		}
	}
	if err != nil {
		return nil, g.fail(ctx, g.classify(err))
	}

	roles, status := ExtractRoles(claims, g.rolePath)
	switch status {
	case RolesPathMissing:
		g.logger.Warn(ctx, "role claim path not found in token",
			observe.Field{Key: "path", Value: g.rolePath.String()})
	case RolesWrongType:
		g.logger.Warn(ctx, "role claim is neither a string nor a list",
			observe.Field{Key: "path", Value: g.rolePath.String()})
	}

	subject, _ := claims["sub"].(string)
	p := NewPrincipal(subject, roles, claims, AuthMethodOIDC)
	if len(p.Roles()) == 0 {
		g.logger.Warn(ctx, "authenticated principal has no roles",
			observe.Field{Key: "subject", Value: subject})
	}
	g.config.Metrics.RecordAuthentication(ctx, "success")
	return p, nil
}

func (g *Gate) classify(err error) *Error {
	switch {
	case errors.Is(err, ErrKeySetUnavailable):
		return newError(KindServiceUnavailable, "Authentication service temporarily unavailable", err)
	case errors.Is(err, ErrTokenExpired):
		return newError(KindTokenExpired, "Token has expired", err)
	default:
		return newError(KindUnauthenticated, "Invalid token", err)
	}
}

func (g *Gate) fail(ctx context.Context, e *Error) *Error {
	g.logger.Warn(ctx, "authentication failed",
		observe.Field{Key: "kind", Value: e.Kind.String()},
		observe.Field{Key: "error", Value: sanitize(e.Cause)},
	)
	g.config.Metrics.RecordAuthentication(ctx, e.Kind.String())
	return e
}

// bearerToken extracts the token from an Authorization header value.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
