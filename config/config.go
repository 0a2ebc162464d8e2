package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/jonwraymond/qsargate/observe"
)

// Environment names.
const (
	Development = "development"
	Staging     = "staging"
	Production  = "production"
)

// Settings is the complete gateway configuration.
type Settings struct {
	App       AppSettings       `yaml:"app"`
	Security  SecuritySettings  `yaml:"security"`
	Toolbox   ToolboxSettings   `yaml:"toolbox"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
}

// AppSettings configures the process.
type AppSettings struct {
	// Environment is development, staging or production.
	Environment string `yaml:"environment"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// ListenAddr is the HTTP listen address.
	// Default: :8000
	ListenAddr string `yaml:"listen_addr"`

	// CORSOrigins lists allowed origins outside development.
	CORSOrigins []string `yaml:"cors_origins"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SecuritySettings configures authentication and authorization.
type SecuritySettings struct {
	OIDCIssuer     string   `yaml:"oidc_issuer"`
	OIDCAudience   string   `yaml:"oidc_audience"`
	OIDCAlgorithms []string `yaml:"oidc_algorithms"`

	// JWKSURI overrides the derived <issuer>/.well-known/jwks.json.
	JWKSURI string `yaml:"jwks_uri"`

	// JWKSCacheTTLSeconds is how long fetched keys stay fresh.
	// Default: 300
	JWKSCacheTTLSeconds int `yaml:"jwks_cache_ttl_seconds"`

	// JWKSFetchTimeout bounds a single key set fetch.
	// Default: 10s
	JWKSFetchTimeout time.Duration `yaml:"jwks_fetch_timeout"`

	// RoleClaimPath is the dot path to the roles claim.
	// Default: roles
	RoleClaimPath string `yaml:"role_claim_path"`

	// BypassAuth disables authentication. Rejected in production.
	BypassAuth bool `yaml:"bypass_auth"`

	// ToolPermissionsFile is the role to tool table. Empty uses the
	// built-in table.
	ToolPermissionsFile string `yaml:"tool_permissions_file"`

	// WatchPermissions reloads the permission file when it changes.
	WatchPermissions bool `yaml:"watch_permissions"`
}

// ToolboxSettings configures the QSAR Toolbox client.
type ToolboxSettings struct {
	// BaseURL of the Toolbox WebAPI.
	// Default: http://localhost:5000
	BaseURL string `yaml:"base_url"`

	// Headers are sent with every request. Values may be secret references.
	Headers map[string]string `yaml:"headers"`

	LightTimeout  time.Duration `yaml:"light_timeout"`
	LightAttempts int           `yaml:"light_attempts"`
	HeavyTimeout  time.Duration `yaml:"heavy_timeout"`
	HeavyAttempts int           `yaml:"heavy_attempts"`

	// HeavyConcurrency caps concurrent heavy calls.
	// Default: 3
	HeavyConcurrency int `yaml:"heavy_concurrency"`

	// RateLimit is the sustained requests per second to the Toolbox.
	// Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// BreakerFailures opens the circuit after this many consecutive failures.
	// Default: 5
	BreakerFailures int `yaml:"breaker_failures"`

	// BreakerReset is how long the circuit stays open.
	// Default: 30s
	BreakerReset time.Duration `yaml:"breaker_reset"`

	// CacheTTL is how long read-only tool results are cached. Zero disables
	// caching.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheSize bounds the number of cached results.
	// Default: 1024
	CacheSize int `yaml:"cache_size"`
}

// TelemetrySettings configures tracing and metrics exporters.
type TelemetrySettings struct {
	Tracing observe.TracingConfig `yaml:"tracing"`
	Metrics observe.MetricsConfig `yaml:"metrics"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		App: AppSettings{
			Environment:     Development,
			LogLevel:        "info",
			ListenAddr:      ":8000",
			ShutdownTimeout: 15 * time.Second,
		},
		Security: SecuritySettings{
			OIDCAlgorithms:      []string{"RS256"},
			JWKSCacheTTLSeconds: 300,
			JWKSFetchTimeout:    10 * time.Second,
			RoleClaimPath:       "roles",
		},
		Toolbox: ToolboxSettings{
			BaseURL:          "http://localhost:5000",
			LightTimeout:     30 * time.Second,
			LightAttempts:    2,
			HeavyTimeout:     300 * time.Second,
			HeavyAttempts:    3,
			HeavyConcurrency: 3,
			BreakerFailures:  5,
			BreakerReset:     30 * time.Second,
			CacheTTL:         5 * time.Minute,
			CacheSize:        1024,
		},
		Telemetry: TelemetrySettings{
			Tracing: observe.TracingConfig{Exporter: "none", SamplePct: 1.0},
			Metrics: observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
		},
	}
}

// IsProduction reports whether the environment is production.
func (s *Settings) IsProduction() bool {
	return s.App.Environment == Production
}

// IsDevelopment reports whether the environment is development.
func (s *Settings) IsDevelopment() bool {
	return s.App.Environment == Development
}

// JWKSURL returns the configured JWKS URI, or one derived from the issuer.
func (s *Settings) JWKSURL() string {
	if s.Security.JWKSURI != "" {
		return s.Security.JWKSURI
	}
	if s.Security.OIDCIssuer == "" {
		return ""
	}
	return strings.TrimRight(s.Security.OIDCIssuer, "/") + "/.well-known/jwks.json"
}

// JWKSCacheTTL returns the key set TTL.
func (s *Settings) JWKSCacheTTL() time.Duration {
	return time.Duration(s.Security.JWKSCacheTTLSeconds) * time.Second
}

// ObserveConfig builds the telemetry configuration.
func (s *Settings) ObserveConfig(serviceName, version string) observe.Config {
	return observe.Config{
		ServiceName: serviceName,
		Version:     version,
		Tracing:     s.Telemetry.Tracing,
		Metrics:     s.Telemetry.Metrics,
		Logging:     observe.LoggingConfig{Enabled: true, Level: s.App.LogLevel},
	}
}

var (
	// ErrInvalidSettings wraps every general validation failure.
	ErrInvalidSettings = errors.New("config: invalid settings")

	// ErrOIDCMisconfigured wraps missing or invalid OIDC settings.
	ErrOIDCMisconfigured = errors.New("config: OIDC misconfigured")
)

var (
	validEnvironments = []string{Development, Staging, Production}
	validLogLevels    = []string{"debug", "info", "warn", "error"}
	validAlgorithms   = []string{
		"RS256", "RS384", "RS512",
		"PS256", "PS384", "PS512",
		"ES256", "ES384", "ES512",
		"EdDSA",
	}
)

// Validate checks everything except the OIDC settings, which are checked
// by ValidateOIDC. All problems are reported together.
func (s *Settings) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidSettings}, args...)...))
	}

	if !slices.Contains(validEnvironments, s.App.Environment) {
		add("app.environment %q is not one of %v", s.App.Environment, validEnvironments)
	}
	if !slices.Contains(validLogLevels, s.App.LogLevel) {
		add("app.log_level %q is not one of %v", s.App.LogLevel, validLogLevels)
	}
	if s.App.ListenAddr == "" {
		add("app.listen_addr is required")
	}
	if s.Security.BypassAuth && s.IsProduction() {
		add("security.bypass_auth cannot be enabled in production")
	}
	if s.Security.JWKSCacheTTLSeconds < 0 {
		add("security.jwks_cache_ttl_seconds must not be negative")
	}
	if err := checkHTTPURL(s.Toolbox.BaseURL); err != nil {
		add("toolbox.base_url: %v", err)
	}
	if s.Toolbox.LightAttempts < 1 || s.Toolbox.HeavyAttempts < 1 {
		add("toolbox attempts must be at least 1")
	}
	if s.Toolbox.LightTimeout <= 0 || s.Toolbox.HeavyTimeout <= 0 {
		add("toolbox timeouts must be positive")
	}
	if s.Toolbox.HeavyConcurrency < 1 {
		add("toolbox.heavy_concurrency must be at least 1")
	}
	if s.Toolbox.RateLimit < 0 {
		add("toolbox.rate_limit must not be negative")
	}
	oc := s.ObserveConfig("qsargate", "")
	if err := oc.Validate(); err != nil {
		add("telemetry: %v", err)
	}
	return errors.Join(errs...)
}

// ValidateOIDC checks the settings authentication needs. It returns nil
// when authentication is bypassed.
func (s *Settings) ValidateOIDC() error {
	if s.Security.BypassAuth {
		return nil
	}

	var missing []string
	if s.Security.OIDCIssuer == "" {
		missing = append(missing, "AUTH_OIDC_ISSUER")
	}
	if s.Security.OIDCAudience == "" {
		missing = append(missing, "AUTH_OIDC_AUDIENCE")
	}
	if len(s.Security.OIDCAlgorithms) == 0 {
		missing = append(missing, "AUTH_OIDC_ALGORITHMS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrOIDCMisconfigured, strings.Join(missing, ", "))
	}

	if err := checkHTTPURL(s.Security.OIDCIssuer); err != nil {
		return fmt.Errorf("%w: issuer: %v", ErrOIDCMisconfigured, err)
	}
	if err := checkHTTPURL(s.JWKSURL()); err != nil {
		return fmt.Errorf("%w: jwks uri: %v", ErrOIDCMisconfigured, err)
	}
	for _, alg := range s.Security.OIDCAlgorithms {
		if !slices.Contains(validAlgorithms, alg) {
			return fmt.Errorf("%w: unsupported algorithm %q", ErrOIDCMisconfigured, alg)
		}
	}
	return nil
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}
