package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAlgorithms are the accepted signing algorithms when none are configured.
var DefaultAlgorithms = []string{"RS256"}

// VerifierConfig configures a TokenVerifier.
type VerifierConfig struct {
	// Issuer is the expected token issuer (iss claim). Required.
	Issuer string

	// Audience is the expected token audience (aud claim). Required.
	Audience string

	// Algorithms is the allow-list of signing algorithms.
	// Default: RS256
	Algorithms []string
}

// KeySource supplies signing keys for verification.
type KeySource interface {
	// Get returns the current key set, refetching when forceRefresh is set.
	Get(ctx context.Context, forceRefresh bool) (*KeySet, error)
}

// Ensure JWKSCache implements KeySource
var _ KeySource = (*JWKSCache)(nil)

// TokenVerifier checks a compact JWT against the identity provider's keys
// and the configured issuer, audience and algorithms.
type TokenVerifier struct {
	config VerifierConfig
	keys   KeySource
}

// NewTokenVerifier creates a verifier backed by keys.
func NewTokenVerifier(config VerifierConfig, keys KeySource) *TokenVerifier {
	if len(config.Algorithms) == 0 {
		config.Algorithms = DefaultAlgorithms
	}
	return &TokenVerifier{config: config, keys: keys}
}

// Verify validates token and returns its claims.
//
// Failures wrap one of ErrKeySetUnavailable, ErrKeyNotFound,
// ErrInvalidSignature, ErrTokenExpired, ErrClaimMismatch,
// ErrTokenMalformed or ErrInvalidCredentials. The signature is checked
// before any claim, so a forged token never reaches claim validation.
func (v *TokenVerifier) Verify(ctx context.Context, token string, forceRefresh bool) (map[string]any, error) {
	if token == "" {
		return nil, ErrMissingCredentials
	}

	keySet, err := v.keys.Get(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keySet.Lookup(kid)
		if !ok {
			return nil, ErrKeyNotFound
		}
		return key, nil
	},
		jwt.WithValidMethods(v.config.Algorithms),
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithAudience(v.config.Audience),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	return map[string]any(claims), nil
}

// classifyJWTError maps library errors onto the package sentinels.
func classifyJWTError(err error) error {
	var sentinel error
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return ErrKeyNotFound
	case errors.Is(err, jwt.ErrTokenMalformed):
		sentinel = ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		sentinel = ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		sentinel = ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience):
		sentinel = ErrClaimMismatch
	default:
		sentinel = ErrInvalidCredentials
	}
	return fmt.Errorf("%w: %s", sentinel, sanitize(err))
}
