package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes access tokens from refresh tokens. Both share one
// secret and format; callers decide which kind a given use accepts.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the signed payload of a session token. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role       string    `json:"role"`
	Kind       TokenKind `json:"kind"`
	HospitalID string    `json:"hospital_id,omitempty"`
	PharmacyID string    `json:"pharmacy_id,omitempty"`
	Region     string    `json:"region,omitempty"`
}

// Identity is what a token is minted for.
type Identity struct {
	UserID uuid.UUID
	Role   Role
	Scope  TenantScope
}

// TokenConfig is injected at construction; the issuer never reads ambient
// configuration.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// TokenIssuer mints and verifies HS256 session tokens.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token signing secret is required")
	}
	t := &TokenIssuer{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}
	if t.accessTTL <= 0 {
		t.accessTTL = DefaultAccessTTL
	}
	if t.refreshTTL <= 0 {
		t.refreshTTL = DefaultRefreshTTL
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t, nil
}

func (t *TokenIssuer) ttl(kind TokenKind) (time.Duration, error) {
	switch kind {
	case AccessToken:
		return t.accessTTL, nil
	case RefreshToken:
		return t.refreshTTL, nil
	}
	return 0, fmt.Errorf("unknown token kind %q", kind)
}

// Issue signs a token of the given kind for id. The returned claims are the
// exact payload that was signed.
func (t *TokenIssuer) Issue(id Identity, kind TokenKind) (string, *Claims, error) {
	if id.UserID == uuid.Nil {
		return "", nil, errors.New("issue token: user id is required")
	}
	if !id.Role.Valid() {
		return "", nil, fmt.Errorf("issue token: %w", ErrUnknownRole)
	}
	ttl, err := t.ttl(kind)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	now := t.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: id.Role.String(),
		Kind: kind,
	}
	switch id.Scope.Kind {
	case ScopeHospital:
		claims.HospitalID = id.Scope.HospitalID.String()
	case ScopePharmacy:
		claims.PharmacyID = id.Scope.PharmacyID.String()
	case ScopeRegion:
		claims.Region = id.Scope.Region
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, structure and expiry. A token is expired once the
// clock reaches its exp claim. Verify does not look at the token kind.
func (t *TokenIssuer) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrInvalidToken)
	}
	return claims, nil
}

// Expiry returns the expiry of c, or the zero time if absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
