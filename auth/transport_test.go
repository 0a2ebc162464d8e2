package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithSlotMiddleware(t *testing.T) {
	var seen *Slot
	h := WithSlotMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SlotFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == nil {
		t.Error("handler should see a slot")
	}
}

func TestRequireAuth(t *testing.T) {
	g := NewGate(GateConfig{}, &fakeVerifier{results: []fakeResult{{claims: map[string]any{"sub": "user|7"}}}})
	var subject string
	h := RequireAuth(g, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
	}))

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Errorf("WWW-Authenticate = %q, want Bearer", rec.Header().Get("WWW-Authenticate"))
		}
	})

	t.Run("valid token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok")
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if subject != "user|7" {
			t.Errorf("subject = %q, want user|7", subject)
		}
	})
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindTokenExpired, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindServiceUnavailable, http.StatusServiceUnavailable},
		{KindMisconfigured, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.kind); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestError_Is(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindTokenExpired, "Token has expired", cause)

	if !errors.Is(err, ErrTokenExpired) {
		t.Error("errors.Is(err, ErrTokenExpired) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Error("expired must not match ErrUnauthenticated")
	}
	if KindOf(err) != KindTokenExpired {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindTokenExpired)
	}
	if KindOf(cause) != 0 {
		t.Error("KindOf(plain error) should be 0")
	}
	if err.Error() != "Token has expired" {
		t.Errorf("Error() = %q", err.Error())
	}
}
