package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(42), "unknown"},
		{Status(-1), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestResultConstructors(t *testing.T) {
	err := errors.New("down")

	if r := Healthy("ok"); r.Status != StatusHealthy || r.Message != "ok" || r.Timestamp.IsZero() {
		t.Errorf("Healthy() = %+v", r)
	}
	if r := Degraded("slow"); r.Status != StatusDegraded {
		t.Errorf("Degraded() = %+v", r)
	}
	if r := Unhealthy("bad", err); r.Status != StatusUnhealthy || r.Error != err {
		t.Errorf("Unhealthy() = %+v", r)
	}
	if r := Healthy("ok").WithDetails(map[string]any{"k": 1}); r.Details["k"] != 1 {
		t.Errorf("WithDetails() = %+v", r)
	}
}

func TestResult_WithDetailsMerges(t *testing.T) {
	base := Degraded("stale keys").WithDetails(map[string]any{"keys": 2, "stale": true})
	r := base.WithDetails(map[string]any{"stale": false, "jwks_uri": "https://idp/jwks"})

	if r.Details["keys"] != 2 || r.Details["stale"] != false || r.Details["jwks_uri"] != "https://idp/jwks" {
		t.Errorf("Details = %v", r.Details)
	}
	if base.Details["stale"] != true || len(base.Details) != 2 {
		t.Errorf("original details changed: %v", base.Details)
	}
}

func TestCheckerFunc(t *testing.T) {
	c := NewCheckerFunc("static", func(ctx context.Context) Result {
		return Degraded("meh")
	})
	if c.Name() != "static" {
		t.Errorf("Name() = %q", c.Name())
	}
	if r := c.Check(context.Background()); r.Status != StatusDegraded {
		t.Errorf("Check() = %+v", r)
	}
}
