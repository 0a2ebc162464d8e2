package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/qsargate/secret"
)

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Load builds settings from defaults, the YAML file at path (if any) and
// the process environment, then resolves secret references.
func Load(ctx context.Context, path string) (*Settings, error) {
	resolver, err := secret.NewDefaultResolver()
	if err != nil {
		return nil, fmt.Errorf("create secret resolver: %w", err)
	}
	defer resolver.Close()
	return LoadWith(ctx, path, os.LookupEnv, resolver)
}

// LoadWith is Load with an explicit environment and resolver. A nil
// resolver only expands environment variables.
func LoadWith(ctx context.Context, path string, lookup LookupFunc, resolver *secret.Resolver) (*Settings, error) {
	s := Default()
	if path != "" {
		if err := s.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if lookup != nil {
		if err := s.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	if err := s.resolveSecrets(ctx, resolver); err != nil {
		return nil, err
	}
	s.normalize()
	return s, nil
}

func (s *Settings) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// envBinding maps one environment variable onto the settings.
type envBinding struct {
	name  string
	apply func(s *Settings, v string) error
}

var envBindings = []envBinding{
	{"ENVIRONMENT", func(s *Settings, v string) error { s.App.Environment = v; return nil }},
	{"LOG_LEVEL", func(s *Settings, v string) error { s.App.LogLevel = v; return nil }},
	{"LISTEN_ADDR", func(s *Settings, v string) error { s.App.ListenAddr = v; return nil }},
	{"AUTH_OIDC_ISSUER", func(s *Settings, v string) error { s.Security.OIDCIssuer = v; return nil }},
	{"AUTH_OIDC_AUDIENCE", func(s *Settings, v string) error { s.Security.OIDCAudience = v; return nil }},
	{"AUTH_OIDC_ALGORITHMS", func(s *Settings, v string) error { s.Security.OIDCAlgorithms = splitList(v); return nil }},
	{"AUTH_JWKS_URI", func(s *Settings, v string) error { s.Security.JWKSURI = v; return nil }},
	{"AUTH_JWKS_CACHE_TTL_SECONDS", func(s *Settings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		s.Security.JWKSCacheTTLSeconds = n
		return nil
	}},
	{"AUTH_ROLE_CLAIM_PATH", func(s *Settings, v string) error { s.Security.RoleClaimPath = v; return nil }},
	{"BYPASS_AUTH", func(s *Settings, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		s.Security.BypassAuth = b
		return nil
	}},
	{"TOOL_PERMISSIONS_FILE", func(s *Settings, v string) error { s.Security.ToolPermissionsFile = v; return nil }},
	{"QSAR_TOOLBOX_API_URL", func(s *Settings, v string) error { s.Toolbox.BaseURL = v; return nil }},
}

func (s *Settings) applyEnv(lookup LookupFunc) error {
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if err := b.apply(s, v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSettings, b.name, err)
		}
	}
	return nil
}

func (s *Settings) resolveSecrets(ctx context.Context, r *secret.Resolver) error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"security.oidc_issuer", &s.Security.OIDCIssuer},
		{"security.oidc_audience", &s.Security.OIDCAudience},
		{"security.jwks_uri", &s.Security.JWKSURI},
		{"toolbox.base_url", &s.Toolbox.BaseURL},
	}
	for _, f := range fields {
		v, err := r.ResolveValue(ctx, *f.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = v
	}

	headers, err := r.ResolveMap(ctx, s.Toolbox.Headers)
	if err != nil {
		return fmt.Errorf("toolbox.headers: %w", err)
	}
	s.Toolbox.Headers = headers
	return nil
}

func (s *Settings) normalize() {
	s.App.Environment = strings.ToLower(strings.TrimSpace(s.App.Environment))
	s.App.LogLevel = strings.ToLower(strings.TrimSpace(s.App.LogLevel))
	if s.App.LogLevel == "warning" {
		s.App.LogLevel = "warn"
	}
	s.Security.OIDCAlgorithms = splitList(strings.Join(s.Security.OIDCAlgorithms, ","))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
