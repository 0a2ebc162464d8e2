package health

import (
	"context"
	"maps"
	"time"
)

// Status grades a dependency of the gateway. Higher values are worse, so
// the overall status is the maximum over all checks.
type Status int

const (
	StatusHealthy Status = iota
	// StatusDegraded still serves requests, for example on a stale JWKS or
	// with the toolbox circuit breaker open.
	StatusDegraded
	StatusUnhealthy
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Result is the outcome of one check.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

func newResult(s Status, msg string, err error) Result {
	return Result{Status: s, Message: msg, Error: err, Timestamp: time.Now()}
}

// Healthy reports a working dependency.
func Healthy(message string) Result { return newResult(StatusHealthy, message, nil) }

// Degraded reports a dependency that works with reduced guarantees.
func Degraded(message string) Result { return newResult(StatusDegraded, message, nil) }

// Unhealthy reports a dependency the gateway cannot use.
func Unhealthy(message string, err error) Result { return newResult(StatusUnhealthy, message, err) }

// WithDetails returns r with details merged into its existing details.
func (r Result) WithDetails(details map[string]any) Result {
	merged := make(map[string]any, len(r.Details)+len(details))
	maps.Copy(merged, r.Details)
	maps.Copy(merged, details)
	r.Details = merged
	return r
}

// Checker checks one dependency: the identity provider's key set, the
// permissions file or the QSAR Toolbox.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc is a Checker backed by a function.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (f *CheckerFunc) Name() string { return f.name }

func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }
