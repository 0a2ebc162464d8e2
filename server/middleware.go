package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jonwraymond/qsargate/audit"
	"github.com/jonwraymond/qsargate/auth"
)

// RequestIDHeader carries the correlation id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// AnonymousUser is the user id recorded for requests that never
// authenticated.
const AnonymousUser = "anonymous"

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDFromContext returns the correlation id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestID keeps an incoming X-Request-ID or assigns a new UUID, and
// echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SecurityHeaders sets headers that disable MIME sniffing and framing.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// RequestAudit emits one http_request event per request once the handler
// returns. It installs the principal slot, so the user id reflects whoever
// the handler authenticated.
func RequestAudit(emitter *audit.Emitter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return auth.WithSlotMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			user := auth.PrincipalFromContext(r.Context()).Subject()
			if user == "" {
				user = AnonymousUser
			}
			emitter.Emit(r.Context(), audit.Event{
				Type:          audit.TypeHTTPRequest,
				UserID:        user,
				CorrelationID: RequestIDFromContext(r.Context()),
				Method:        r.Method,
				Path:          r.URL.Path,
				StatusCode:    status,
				DurationMS:    float64(time.Since(start).Microseconds()) / 1000,
			})
		}))
	}
}
