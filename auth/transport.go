package auth

import "net/http"

// WithSlotMiddleware is HTTP middleware that installs an empty principal
// slot in the request context. Handlers that authenticate fill it, and
// anything wrapping this middleware can read it after next returns.
//
// Usage:
//
//	r.Use(auth.WithSlotMiddleware)
func WithSlotMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := WithSlot(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth is HTTP middleware that rejects requests the gate does not
// authenticate. The principal is attached to the request context.
func RequireAuth(gate *Gate, onError func(w http.ResponseWriter, r *http.Request, err *Error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := gate.AuthenticateRequest(r)
			if err != nil {
				if onError != nil {
					onError(w, r, err)
					return
				}
				WriteChallenge(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// StatusCode returns the HTTP status for an auth failure kind.
func StatusCode(kind Kind) int {
	switch kind {
	case KindUnauthenticated, KindTokenExpired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteChallenge writes a plain error response for err. 401 responses
// carry a Bearer challenge.
func WriteChallenge(w http.ResponseWriter, err *Error) {
	status := StatusCode(err.Kind)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	http.Error(w, err.Message, status)
}
