package auth

import (
	"fmt"
	"strings"
)

// DefaultRoleClaimPath is used when no role claim path is configured.
const DefaultRoleClaimPath = "roles"

// ClaimPath is a dot-separated path into a claims document,
// e.g. "realm_access.roles".
type ClaimPath []string

// ParseClaimPath splits a dot path. An empty path yields DefaultRoleClaimPath.
func ParseClaimPath(s string) ClaimPath {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultRoleClaimPath
	}
	return ClaimPath(strings.Split(s, "."))
}

func (p ClaimPath) String() string {
	return strings.Join(p, ".")
}

// Resolve walks claims along p. It returns the value found and true, or
// the index of the first segment that could not be followed and false.
func (p ClaimPath) Resolve(claims map[string]any) (any, int, bool) {
	var cur any = claims
	for i, seg := range p {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, i, false
		}
		next, ok := m[seg]
		if !ok {
			return nil, i, false
		}
		cur = next
	}
	return cur, len(p), true
}

// RoleStatus describes how role extraction went.
type RoleStatus int

const (
	// RolesFound means the path resolved to a string or a list.
	RolesFound RoleStatus = iota
	// RolesPathMissing means a segment of the path was absent.
	RolesPathMissing
	// RolesWrongType means the path resolved to something other than
	// a string or a list.
	RolesWrongType
)

// ExtractRoles reads the role claim at path. A string value is a single
// role; a list has each element rendered as a string. Any other outcome
// yields no roles, with the status explaining why.
func ExtractRoles(claims map[string]any, path ClaimPath) ([]string, RoleStatus) {
	v, _, ok := path.Resolve(claims)
	if !ok {
		return nil, RolesPathMissing
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil, RolesFound
		}
		return []string{val}, RolesFound
	case []string:
		return append([]string(nil), val...), RolesFound
	case []any:
		roles := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			if s, ok := item.(string); ok {
				roles = append(roles, s)
				continue
			}
			roles = append(roles, fmt.Sprint(item))
		}
		return roles, RolesFound
	default:
		return nil, RolesWrongType
	}
}
