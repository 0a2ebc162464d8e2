// Package auth authenticates bearer tokens issued by an OIDC provider and
// authorizes tool invocations against a role to tool permission table.
//
// The pieces compose as follows:
//
//	JWKSCache -> TokenVerifier -> Gate           (who is calling)
//	PermissionStore -> RBACAuthorizer            (what they may call)
//
// The Gate retries verification exactly once, with a forced key refresh,
// when a token names a key id the cached key set does not contain. Every
// other failure is final. Failures are returned as *Error values carrying
// a Kind so transports can map them to status codes.
package auth
