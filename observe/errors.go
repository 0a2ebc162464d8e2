package observe

import "errors"

// Configuration errors returned by Config.Validate.
var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: invalid log level")
)

type nameSet map[string]struct{}

func newNameSet(names ...string) nameSet {
	s := make(nameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s nameSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

// Accepted exporter and level names; the empty string selects the default.
var (
	tracingExporters = newNameSet("otlp", "stdout", "none", "")
	metricsExporters = newNameSet("prometheus", "otlp", "stdout", "none", "")
	logLevels        = newNameSet("debug", "info", "warn", "error", "")
)

// redactedKeys are field keys whose values never reach a log line, compared
// case-insensitively. Bearer tokens, key material and IdP client secrets
// are the values the gateway handles.
var redactedKeys = newNameSet(
	"authorization",
	"bearer",
	"token",
	"access_token",
	"id_token",
	"refresh_token",
	"client_secret",
	"private_key",
	"password",
	"secret",
	"api_key",
	"apikey",
	"credential",
	"cookie",
)
