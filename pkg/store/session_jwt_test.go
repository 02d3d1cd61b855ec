package store

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"jobportal/pkg/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var recruiter = domain.User{ID: 42, Role: domain.RoleRecruiter}

func TestJWTHS256SessionRoundTrip(t *testing.T) {
	s, err := NewJWTHS256SessionStore(testSecret, time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new hs256 store: %v", err)
	}
	token, err := s.NewSession(recruiter)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	session, err := s.ResolveSession(token)
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	if session.UserID != 42 || session.Role != domain.RoleRecruiter {
		t.Fatalf("unexpected session: %+v", session)
	}
	if len(s.JWKS()) != 0 {
		t.Fatalf("hs256 store must not publish keys")
	}
}

func TestJWTHS256RejectsShortSecret(t *testing.T) {
	if _, err := NewJWTHS256SessionStore("short", time.Minute, nil, JWTOptions{}); err == nil {
		t.Fatalf("expected short secret to fail")
	}
}

func TestJWTSessionStoreRejectsTamperedAndForeignTokens(t *testing.T) {
	s, err := NewJWTHS256SessionStore(testSecret, time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	other, err := NewJWTHS256SessionStore(strings.Repeat("x", 32), time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new other store: %v", err)
	}
	foreign, err := other.NewSession(recruiter)
	if err != nil {
		t.Fatalf("foreign session: %v", err)
	}

	for name, token := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-jwt",
		"foreign":   foreign,
		"truncated": foreign[:len(foreign)-4],
	} {
		if _, err := s.ResolveSession(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestJWTSessionStoreRejectsExpired(t *testing.T) {
	s, err := NewJWTHS256SessionStore(testSecret, time.Minute, nil, JWTOptions{Leeway: time.Second})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Now().UTC()
	claims := sessionClaims{
		Role: string(domain.RoleJobSeeker),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			Issuer:    defaultJWTIssuer,
			Audience:  jwt.ClaimStrings{defaultJWTAudience},
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			ID:        "jti-expired",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.ResolveSession(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestJWTSessionStoreRejectsUnknownRole(t *testing.T) {
	s, err := NewJWTHS256SessionStore(testSecret, time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := s.NewSession(domain.User{ID: 1, Role: "ADMIN"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := s.ResolveSession(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected unknown role to fail, got %v", err)
	}
}

func TestJWTSessionStoreEnforcesAudience(t *testing.T) {
	key := newRSAKey(t)
	signing, err := NewJWTRS256SessionStore(key, "kid-a", time.Minute, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("signing store: %v", err)
	}
	verify, err := NewJWTRS256SessionStore(key, "kid-a", time.Minute, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-b"})
	if err != nil {
		t.Fatalf("verify store: %v", err)
	}
	token, err := signing.NewSession(recruiter)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := verify.ResolveSession(token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestJWTSessionStoreRevokesByJTI(t *testing.T) {
	revoker := NewMemoryTokenRevoker()
	s, err := NewJWTHS256SessionStore(testSecret, time.Minute, revoker, JWTOptions{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := s.NewSession(recruiter)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.ResolveSession(token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked token to fail, got %v", err)
	}
}

func TestJWTRS256SessionStoreFromPEMAndJWKS(t *testing.T) {
	privatePath, publicPath := writeRSAKeyPairFiles(t, "active")
	s, err := NewJWTRS256SessionStoreFromPEM(privatePath, publicPath, "kid-active", time.Minute, NewMemoryTokenRevoker(), JWTOptions{})
	if err != nil {
		t.Fatalf("new rs256 store: %v", err)
	}
	token, err := s.NewSession(recruiter)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	session, err := s.ResolveSession(token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if session.UserID != recruiter.ID {
		t.Fatalf("unexpected user id %d", session.UserID)
	}

	keys := s.JWKS()
	if len(keys) != 1 {
		t.Fatalf("expected 1 jwk, got %d", len(keys))
	}
	if keys[0].Kid != "kid-active" || keys[0].Kty != "RSA" || keys[0].Alg != "RS256" {
		t.Fatalf("unexpected jwk fields: %+v", keys[0])
	}
	if keys[0].N == "" || keys[0].E == "" {
		t.Fatalf("expected RSA modulus/exponent in jwks")
	}
}

func TestJWTRS256SessionStoreRejectsMismatchedPublicKey(t *testing.T) {
	privatePath, _ := writeRSAKeyPairFiles(t, "a")
	_, otherPublic := writeRSAKeyPairFiles(t, "b")
	if _, err := NewJWTRS256SessionStoreFromPEM(privatePath, otherPublic, "kid", time.Minute, nil, JWTOptions{}); err == nil {
		t.Fatalf("expected mismatched key pair to fail")
	}
}

func TestJWTRS256SessionStoreRequiresKidHeader(t *testing.T) {
	key := newRSAKey(t)
	s, err := NewJWTRS256SessionStore(key, "jwt-active", time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, sessionClaims{
		Role: string(domain.RoleRecruiter),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    defaultJWTIssuer,
			Audience:  jwt.ClaimStrings{defaultJWTAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
			ID:        "jti-missing-kid",
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := s.ResolveSession(signed); err == nil {
		t.Fatalf("expected missing kid token to fail")
	}
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func writeRSAKeyPairFiles(t *testing.T, prefix string) (string, string) {
	t.Helper()
	key := newRSAKey(t)

	dir := t.TempDir()
	privatePath := filepath.Join(dir, prefix+"-private.pem")
	publicPath := filepath.Join(dir, prefix+"-public.pem")

	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}
	return privatePath, publicPath
}
