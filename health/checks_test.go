package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/qsargate/auth"
)

type fakeKeySet struct {
	status auth.JWKSStatus
}

func (f fakeKeySet) URL() string             { return "https://idp.example.com/.well-known/jwks.json" }
func (f fakeKeySet) Status() auth.JWKSStatus { return f.status }

func TestJWKSChecker(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		status auth.JWKSStatus
		want   Status
	}{
		{"fresh keys", auth.JWKSStatus{Keys: 2, KeyIDs: []string{"a", "b"}, FetchedAt: now, ExpiresAt: now.Add(time.Minute)}, StatusHealthy},
		{"stale keys", auth.JWKSStatus{Keys: 1, Stale: true, LastError: "fetch JWKS: status 502", LastErrorAt: now}, StatusDegraded},
		{"never fetched", auth.JWKSStatus{}, StatusDegraded},
		{"fetch failed with no cache", auth.JWKSStatus{LastError: "connection refused", LastErrorAt: now}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewJWKSChecker(fakeKeySet{status: tt.status})
			r := c.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Check() = %v (%s), want %v", r.Status, r.Message, tt.want)
			}
			if r.Details["url"] == "" {
				t.Error("details missing url")
			}
		})
	}
}

type fakePermissions struct {
	table *auth.PermissionTable
	err   error
}

func (f fakePermissions) Table() *auth.PermissionTable { return f.table }
func (f fakePermissions) LoadError() error             { return f.err }

func TestPermissionsChecker(t *testing.T) {
	tests := []struct {
		name  string
		state PermissionState
		want  Status
	}{
		{"default table", auth.NewStaticPermissionStore(auth.DefaultPermissionTable()), StatusHealthy},
		{"empty table", auth.NewStaticPermissionStore(nil), StatusDegraded},
		{"reload failed", fakePermissions{table: auth.DefaultPermissionTable(), err: auth.ErrPermissionsMalformed}, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewPermissionsChecker(tt.state).Check(context.Background()); got.Status != tt.want {
				t.Errorf("Check() = %v (%s), want %v", got.Status, got.Message, tt.want)
			}
		})
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestToolboxChecker(t *testing.T) {
	up := NewToolboxChecker(pingFunc(func(context.Context) error { return nil }), "http://localhost:5000")
	if r := up.Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("reachable toolbox = %+v", r)
	}

	down := NewToolboxChecker(pingFunc(func(context.Context) error { return errors.New("connection refused") }), "http://localhost:5000")
	r := down.Check(context.Background())
	if r.Status != StatusUnhealthy || r.Error == nil {
		t.Errorf("unreachable toolbox = %+v", r)
	}
	if r.Details["base_url"] != "http://localhost:5000" {
		t.Errorf("details = %v", r.Details)
	}
}

type detailedPinger struct {
	pingFunc
	details map[string]any
}

func (p detailedPinger) HealthDetails() map[string]any { return p.details }

func TestToolboxChecker_BreakerState(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	tests := []struct {
		name  string
		state string
		want  Status
	}{
		{"closed", "closed", StatusHealthy},
		{"open", "open", StatusDegraded},
		{"half-open", "half-open", StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := detailedPinger{pingFunc: ok, details: map[string]any{"circuit_breaker": tt.state, "heavy_in_flight": 1}}
			r := NewToolboxChecker(p, "http://localhost:5000").Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Check() = %v (%s), want %v", r.Status, r.Message, tt.want)
			}
			if r.Details["heavy_in_flight"] != 1 || r.Details["base_url"] != "http://localhost:5000" {
				t.Errorf("details = %v", r.Details)
			}
		})
	}
}
