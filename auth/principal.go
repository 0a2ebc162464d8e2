package auth

import (
	"sort"
	"time"
)

// AuthMethod indicates how a principal was established.
type AuthMethod string

const (
	AuthMethodOIDC   AuthMethod = "oidc"
	AuthMethodBypass AuthMethod = "bypass"
)

// Bypass principal values, used only when authentication is disabled for
// local development.
const (
	BypassSubject = "dev|bypass"
	BypassRole    = "SYSTEM_BYPASS"
)

// Principal is an authenticated caller. It is immutable once built;
// accessors return copies.
type Principal struct {
	subject   string
	roles     []string
	claims    map[string]any
	method    AuthMethod
	expiresAt time.Time
}

// NewPrincipal builds a principal. Roles are deduplicated and sorted.
func NewPrincipal(subject string, roles []string, claims map[string]any, method AuthMethod) *Principal {
	p := &Principal{
		subject: subject,
		roles:   normalizeRoles(roles),
		claims:  make(map[string]any, len(claims)),
		method:  method,
	}
	for k, v := range claims {
		p.claims[k] = v
	}
	if exp, ok := numericClaim(claims, "exp"); ok {
		p.expiresAt = time.Unix(exp, 0)
	}
	return p
}

// BypassPrincipal returns the synthetic principal used when auth is disabled.
func BypassPrincipal() *Principal {
	return NewPrincipal(BypassSubject, []string{BypassRole}, map[string]any{"sub": BypassSubject}, AuthMethodBypass)
}

// Subject returns the token subject (sub claim).
func (p *Principal) Subject() string {
	if p == nil {
		return ""
	}
	return p.subject
}

// Roles returns the principal's roles in sorted order.
func (p *Principal) Roles() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.roles...)
}

// HasRole checks if the principal carries role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	i := sort.SearchStrings(p.roles, role)
	return i < len(p.roles) && p.roles[i] == role
}

// Claim returns a single raw claim.
func (p *Principal) Claim(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.claims[name]
	return v, ok
}

// Claims returns a shallow copy of the raw claims.
func (p *Principal) Claims() map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p.claims))
	for k, v := range p.claims {
		out[k] = v
	}
	return out
}

// Method returns how the principal was authenticated.
func (p *Principal) Method() AuthMethod {
	if p == nil {
		return ""
	}
	return p.method
}

// IsBypass reports whether this is the development bypass principal.
func (p *Principal) IsBypass() bool {
	return p != nil && p.method == AuthMethodBypass
}

// ExpiresAt returns the token expiry, or the zero time if the token had none.
func (p *Principal) ExpiresAt() time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.expiresAt
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func numericClaim(claims map[string]any, name string) (int64, bool) {
	switch v := claims[name].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
