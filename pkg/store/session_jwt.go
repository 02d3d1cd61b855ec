package store

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"jobportal/pkg/domain"
)

const (
	defaultJWTIssuer   = "jobportal-auth"
	defaultJWTAudience = "jobportal-api"
	defaultSessionTTL  = 24 * time.Hour
	minHMACSecretBytes = 32
)

var defaultJWTLeeway = 30 * time.Second

var (
	// ErrInvalidToken covers malformed, expired, and badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for tokens revoked by logout.
	ErrTokenRevoked = errors.New("token revoked")
)

// JWTOptions configures JWT claim validation behavior.
type JWTOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTSessionStore issues and validates session JWTs carrying user id and role.
// It signs with RS256 (kid + JWKS) when built from an RSA key, HS256 otherwise.
type JWTSessionStore struct {
	ttl     time.Duration
	revoker TokenRevoker

	hmacSecret []byte

	rsaSigner    *rsa.PrivateKey
	rsaSignerKid string
	rsaVerifiers map[string]*rsa.PublicKey

	issuer   string
	audience string
	leeway   time.Duration
}

// NewJWTHS256SessionStore builds a store signing with a shared secret.
func NewJWTHS256SessionStore(secret string, ttl time.Duration, revoker TokenRevoker, opts JWTOptions) (*JWTSessionStore, error) {
	if len(secret) < minHMACSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minHMACSecretBytes)
	}
	opts = normalizeJWTOptions(opts)
	return &JWTSessionStore{
		ttl:        normalizeTTL(ttl),
		revoker:    revoker,
		hmacSecret: []byte(secret),
		issuer:     opts.Issuer,
		audience:   opts.Audience,
		leeway:     opts.Leeway,
	}, nil
}

// NewJWTRS256SessionStore builds a store signing with an RSA key under keyID.
func NewJWTRS256SessionStore(privateKey *rsa.PrivateKey, keyID string, ttl time.Duration, revoker TokenRevoker, opts JWTOptions) (*JWTSessionStore, error) {
	if privateKey == nil {
		return nil, errors.New("jwt private key is required")
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		keyID = "jwt-active"
	}
	opts = normalizeJWTOptions(opts)
	return &JWTSessionStore{
		ttl:          normalizeTTL(ttl),
		revoker:      revoker,
		rsaSigner:    privateKey,
		rsaSignerKid: keyID,
		rsaVerifiers: map[string]*rsa.PublicKey{keyID: &privateKey.PublicKey},
		issuer:       opts.Issuer,
		audience:     opts.Audience,
		leeway:       opts.Leeway,
	}, nil
}

// NewJWTRS256SessionStoreFromPEM loads the signing key (and optionally a
// separate public key) from PEM files.
func NewJWTRS256SessionStoreFromPEM(privateKeyPath, publicKeyPath, keyID string, ttl time.Duration, revoker TokenRevoker, opts JWTOptions) (*JWTSessionStore, error) {
	privateKey, err := loadRSAPrivateKeyFromPEMFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	s, err := NewJWTRS256SessionStore(privateKey, keyID, ttl, revoker, opts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(publicKeyPath) != "" {
		pub, err := loadRSAPublicKeyFromPEMFile(publicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load jwt public key: %w", err)
		}
		if pub.N.Cmp(privateKey.N) != 0 || pub.E != privateKey.E {
			return nil, errors.New("jwt public key does not match private key")
		}
		s.rsaVerifiers[s.rsaSignerKid] = pub
	}
	return s, nil
}

// TTL reports the lifetime of issued tokens.
func (s *JWTSessionStore) TTL() time.Duration {
	return s.ttl
}

// NewSession creates a signed JWT for the user.
func (s *JWTSessionStore) NewSession(user domain.User) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	switch {
	case s.rsaSigner != nil:
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		token.Header["kid"] = s.rsaSignerKid
		return token.SignedString(s.rsaSigner)
	case len(s.hmacSecret) > 0:
		return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.hmacSecret)
	default:
		return "", errors.New("jwt store not configured")
	}
}

// ResolveSession validates a JWT and returns the identity it carries.
func (s *JWTSessionStore) ResolveSession(token string) (Session, error) {
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return Session{}, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil {
			return Session{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Session{}, ErrTokenRevoked
		}
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil || userID <= 0 {
		return Session{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	role, ok := domain.ParseUserRole(claims.Role)
	if !ok {
		return Session{}, fmt.Errorf("%w: bad role", ErrInvalidToken)
	}
	return Session{UserID: userID, Role: role}, nil
}

// DeleteSession revokes the token until it expires.
func (s *JWTSessionStore) DeleteSession(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

// JWKS returns JSON Web Keys when RS256 mode is enabled.
func (s *JWTSessionStore) JWKS() []JWK {
	out := make([]JWK, 0, len(s.rsaVerifiers))
	for kid, pub := range s.rsaVerifiers {
		out = append(out, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: kid,
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return out
}

func (s *JWTSessionStore) parseAndVerify(token string) (sessionClaims, error) {
	claims := sessionClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	method := jwt.SigningMethodHS256.Alg()
	if s.rsaSigner != nil {
		method = jwt.SigningMethodRS256.Alg()
	}
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, s.keyFunc, parserOptions...)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("not valid")
		}
		return claims, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.ID) == "" {
		return claims, fmt.Errorf("%w: jti missing", ErrInvalidToken)
	}
	return claims, nil
}

func (s *JWTSessionStore) keyFunc(t *jwt.Token) (any, error) {
	if s.rsaSigner == nil {
		return s.hmacSecret, nil
	}
	kid, _ := t.Header["kid"].(string)
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, errors.New("token key id required")
	}
	pub, ok := s.rsaVerifiers[kid]
	if !ok {
		return nil, errors.New("unknown token key")
	}
	return pub, nil
}

func loadRSAPrivateKeyFromPEMFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pkcs1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return pkcs1, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return privateKey, nil
}

func loadRSAPublicKeyFromPEMFile(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	pubAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	pub, ok := pubAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not rsa")
	}
	return pub, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultSessionTTL
	}
	return ttl
}

func normalizeJWTOptions(opts JWTOptions) JWTOptions {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	opts.Audience = strings.TrimSpace(opts.Audience)
	if opts.Issuer == "" {
		opts.Issuer = defaultJWTIssuer
	}
	if opts.Audience == "" {
		opts.Audience = defaultJWTAudience
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultJWTLeeway
	}
	return opts
}
