package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenVerifier_Verify(t *testing.T) {
	k1 := newTestKey(t, "k1")
	other := newTestKey(t, "k1") // same kid, different key material
	srv := newJWKSServer(t, k1)
	v, _ := newTestVerifier(srv.URL)

	expired := validClaims("GUEST")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongIss := validClaims("GUEST")
	wrongIss["iss"] = "https://evil.example.com/"

	wrongAud := validClaims("GUEST")
	wrongAud["aud"] = "someone-else"

	notYet := validClaims("GUEST")
	notYet["nbf"] = time.Now().Add(time.Hour).Unix()

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("GUEST"))
	hs.Header["kid"] = "k1"
	hsToken, _ := hs.SignedString([]byte("shared-secret"))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"valid", k1.sign(t, validClaims("GUEST")), nil},
		{"expired", k1.sign(t, expired), ErrTokenExpired},
		{"wrong issuer", k1.sign(t, wrongIss), ErrClaimMismatch},
		{"wrong audience", k1.sign(t, wrongAud), ErrClaimMismatch},
		{"not yet valid", k1.sign(t, notYet), ErrInvalidCredentials},
		{"forged signature", other.sign(t, validClaims("GUEST")), ErrInvalidSignature},
		{"unknown kid", newTestKey(t, "k9").sign(t, validClaims("GUEST")), ErrKeyNotFound},
		{"algorithm not allowed", hsToken, ErrInvalidSignature},
		{"malformed", "not.a.jwt", ErrTokenMalformed},
		{"empty", "", ErrMissingCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Verify(context.Background(), tt.token, false)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Verify() error = %v", err)
				}
				if claims["sub"] != "user|123" {
					t.Errorf("sub = %v, want user|123", claims["sub"])
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenVerifier_KeyNotFoundIsInvalidSignature(t *testing.T) {
	if !errors.Is(ErrKeyNotFound, ErrInvalidSignature) {
		t.Error("ErrKeyNotFound should match ErrInvalidSignature")
	}
}

func TestTokenVerifier_SignatureCheckedBeforeClaims(t *testing.T) {
	srv := newJWKSServer(t, newTestKey(t, "k1"))
	v, _ := newTestVerifier(srv.URL)

	// forged and expired: must report the signature, not the expiry
	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	token := newTestKey(t, "k1").sign(t, claims)

	_, err := v.Verify(context.Background(), token, false)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify() error = %v, want ErrInvalidSignature", err)
	}
	if errors.Is(err, ErrTokenExpired) {
		t.Error("expiry must not be evaluated for a forged token")
	}
}

func TestTokenVerifier_KeySetUnavailable(t *testing.T) {
	srv := newJWKSServer(t)
	srv.setStatus(http.StatusServiceUnavailable)
	v, _ := newTestVerifier(srv.URL)

	_, err := v.Verify(context.Background(), newTestKey(t, "k1").sign(t, validClaims()), false)
	if !errors.Is(err, ErrKeySetUnavailable) {
		t.Errorf("Verify() error = %v, want ErrKeySetUnavailable", err)
	}
}

func TestNewTokenVerifier_DefaultAlgorithms(t *testing.T) {
	v := NewTokenVerifier(VerifierConfig{Issuer: testIssuer, Audience: testAudience}, nil)
	if len(v.config.Algorithms) != 1 || v.config.Algorithms[0] != "RS256" {
		t.Errorf("Algorithms = %v, want [RS256]", v.config.Algorithms)
	}
}
