package auth

import (
	"errors"
	"fmt"

	"github.com/jonwraymond/qsargate/audit"
)

// Sentinel errors reported by the verifier and key cache.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrInvalidSignature   = errors.New("auth: invalid signature")
	ErrClaimMismatch      = errors.New("auth: issuer or audience mismatch")
	ErrKeySetUnavailable  = errors.New("auth: signing key set unavailable")

	// ErrKeyNotFound is an ErrInvalidSignature that also signals a possible
	// key rotation at the identity provider.
	ErrKeyNotFound = fmt.Errorf("%w: no matching key id", ErrInvalidSignature)
)

// Sentinel errors for the failure kinds surfaced to callers.
var (
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrServiceUnavailable = errors.New("auth: authentication service unavailable")
	ErrForbidden          = errors.New("auth: access denied")
	ErrMisconfigured      = errors.New("auth: authentication not configured")
)

// Kind classifies an authentication or authorization failure.
type Kind int

const (
	KindUnauthenticated Kind = iota + 1
	KindTokenExpired
	KindServiceUnavailable
	KindForbidden
	KindMisconfigured
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindTokenExpired:
		return "token_expired"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindForbidden:
		return "forbidden"
	case KindMisconfigured:
		return "misconfigured"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindTokenExpired:
		return ErrTokenExpired
	case KindServiceUnavailable:
		return ErrServiceUnavailable
	case KindForbidden:
		return ErrForbidden
	case KindMisconfigured:
		return ErrMisconfigured
	default:
		return nil
	}
}

// Error is the failure returned by the authentication gate.
// Message is safe to show to callers; Cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// maxErrorDetail bounds error text copied into logs.
const maxErrorDetail = 200

// sanitize truncates err's message so verifier internals never leak in full.
func sanitize(err error) string {
	if err == nil {
		return ""
	}
	return audit.Truncate(err.Error(), maxErrorDetail)
}
