package auth

import (
	"context"
	"fmt"
)

// Authorizer decides whether a principal may invoke a tool.
type Authorizer interface {
	// Authorize returns nil if permitted, or an error (typically
	// *AuthzError) if denied.
	Authorize(ctx context.Context, req *AuthzRequest) error

	// Name returns a unique identifier for this authorizer.
	Name() string
}

// AuthzRequest contains the information needed for authorization.
type AuthzRequest struct {
	// Subject is the principal making the request.
	Subject *Principal

	// Tool is the name of the tool being invoked.
	Tool string
}

// AuthzError represents an authorization failure.
type AuthzError struct {
	Subject string
	Tool    string
	Roles   []string
	Reason  string
}

func (e *AuthzError) Error() string {
	return fmt.Sprintf("authorization denied: subject=%q tool=%q reason=%q", e.Subject, e.Tool, e.Reason)
}

// Is reports whether this error matches the target.
func (e *AuthzError) Is(target error) bool {
	return target == ErrForbidden
}

// Ensure RBACAuthorizer satisfies Authorizer
var _ Authorizer = (*RBACAuthorizer)(nil)
