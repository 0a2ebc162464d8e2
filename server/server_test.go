package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/qsargate/audit"
	"github.com/jonwraymond/qsargate/auth"
	"github.com/jonwraymond/qsargate/health"
)

// authenticatingHandler fills the principal slot the way the MCP handler
// does after a successful authentication.
func authenticatingHandler(subject string, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subject != "" {
			auth.SlotFromContext(r.Context()).Set(auth.NewPrincipal(subject, nil, nil, auth.AuthMethodOIDC))
		}
		w.WriteHeader(status)
	})
}

func newTestRouter(mcp http.Handler, sink *audit.MemorySink) http.Handler {
	return NewRouter(RouterOptions{
		MCP:     mcp,
		Service: health.ServiceInfo{Name: "qsargate", Version: "test"},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		Audit:       audit.NewEmitter(nil, sink),
		CORSOrigins: []string{"https://app.example.com"},
	})
}

func httpEvents(sink *audit.MemorySink) []audit.Event {
	var out []audit.Event
	for _, ev := range sink.Events() {
		if ev.Type == audit.TypeHTTPRequest {
			out = append(out, ev)
		}
	}
	return out
}

func TestRouter_RequestAudit(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		status   int
		wantUser string
	}{
		{"authenticated", "alice", http.StatusOK, "alice"},
		{"anonymous", "", http.StatusUnauthorized, AnonymousUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := audit.NewMemorySink()
			h := newTestRouter(authenticatingHandler(tt.subject, tt.status), sink)

			req := httptest.NewRequest(http.MethodPost, PathMCP, strings.NewReader("{}"))
			req.Header.Set(RequestIDHeader, "req-123")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			events := httpEvents(sink)
			if len(events) != 1 {
				t.Fatalf("got %d http_request events, want 1", len(events))
			}
			ev := events[0]
			if ev.UserID != tt.wantUser {
				t.Errorf("UserID = %q, want %q", ev.UserID, tt.wantUser)
			}
			if ev.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", ev.StatusCode, tt.status)
			}
			if ev.CorrelationID != "req-123" {
				t.Errorf("CorrelationID = %q, want req-123", ev.CorrelationID)
			}
			if ev.Method != http.MethodPost || ev.Path != PathMCP {
				t.Errorf("Method/Path = %s %s", ev.Method, ev.Path)
			}
			if ev.DurationMS < 0 {
				t.Errorf("DurationMS = %v", ev.DurationMS)
			}
		})
	}
}

func TestRouter_RequestIDGenerated(t *testing.T) {
	h := newTestRouter(authenticatingHandler("", http.StatusOK), audit.NewMemorySink())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	id := rec.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("X-Request-ID = %q, want a UUID: %v", id, err)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	h := newTestRouter(authenticatingHandler("", http.StatusOK), audit.NewMemorySink())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestRouter_Routes(t *testing.T) {
	h := newTestRouter(authenticatingHandler("", http.StatusAccepted), audit.NewMemorySink())
	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/mcp", http.StatusAccepted},
		{http.MethodGet, "/mcp", http.StatusMethodNotAllowed},
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/missing", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}

func TestRouter_CORS(t *testing.T) {
	tests := []struct {
		name     string
		allowAll bool
		origin   string
		want     string
	}{
		{"configured origin", false, "https://app.example.com", "https://app.example.com"},
		{"unknown origin", false, "https://evil.example.com", ""},
		{"development", true, "https://anything.example.com", "*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(RouterOptions{
				MCP:             authenticatingHandler("", http.StatusOK),
				AllowAllOrigins: tt.allowAll,
				CORSOrigins:     []string{"https://app.example.com"},
			})
			req := httptest.NewRequest(http.MethodOptions, PathMCP, nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServer_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := New(Config{Handler: newTestRouter(authenticatingHandler("", http.StatusOK), audit.NewMemorySink())})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestServer_RunListenError(t *testing.T) {
	s := New(Config{Addr: "256.0.0.1:bad"})
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want listen error")
	}
}
