// Package config loads gateway settings.
//
// Settings start from Default, are overlaid by an optional YAML file and
// then by environment variables (AUTH_OIDC_ISSUER, BYPASS_AUTH, ...).
// String values may reference secrets, see package secret.
package config
