// Package secret resolves configuration values that reference secrets.
//
// Values go through strict environment expansion first (see
// ExpandEnvStrict), then any secretref is resolved by a Provider:
//
//	secretref:env:OIDC_CLIENT_SECRET
//	secretref:file:/run/secrets/toolbox_api_key
//	Bearer secretref:file:/run/secrets/toolbox_token
//
// The env and file providers are registered in DefaultRegistry.
package secret
