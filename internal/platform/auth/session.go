package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credentials is the stored login material for a user.
type Credentials struct {
	UserID       uuid.UUID
	Role         string
	PasswordHash string
}

// CredentialStore finds credentials by login email. A miss wraps ErrUserNotFound.
type CredentialStore interface {
	FindCredentials(ctx context.Context, email string) (*Credentials, error)
}

// Session is returned from a successful login or refresh. RefreshToken is
// empty on refresh: only a new access token is minted.
type Session struct {
	AccessToken      string     `json:"accessToken"`
	RefreshToken     string     `json:"refreshToken,omitempty"`
	AccessExpiresAt  time.Time  `json:"accessExpiresAt"`
	RefreshExpiresAt *time.Time `json:"refreshExpiresAt,omitempty"`
	User             *Principal `json:"user"`
}

// SessionService implements login, refresh and logout on top of the token
// issuer and the resolver.
type SessionService struct {
	creds    CredentialStore
	verifier *CredentialVerifier
	tokens   *TokenIssuer
	resolver *Resolver
	denylist Denylist
}

func NewSessionService(creds CredentialStore, verifier *CredentialVerifier, tokens *TokenIssuer, resolver *Resolver, denylist Denylist) *SessionService {
	return &SessionService{
		creds:    creds,
		verifier: verifier,
		tokens:   tokens,
		resolver: resolver,
		denylist: denylist,
	}
}

// Login verifies email and password and issues both token kinds. Unknown
// users, wrong passwords and deactivated accounts all yield
// ErrInvalidCredentials.
func (s *SessionService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	cred, err := s.creds.FindCredentials(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.verifier.Burn(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find credentials: %w", err)
	}
	if err := s.verifier.Verify(password, cred.PasswordHash); err != nil {
		return nil, err
	}

	role, err := ParseRole(cred.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	principal, err := s.resolver.ResolveIdentity(ctx, cred.UserID, role)
	if err != nil {
		if IsSessionError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return nil, err
	}

	id := Identity{UserID: principal.ID, Role: principal.Role, Scope: principal.Scope}
	access, accessClaims, err := s.tokens.Issue(id, AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := s.tokens.Issue(id, RefreshToken)
	if err != nil {
		return nil, err
	}
	refreshExp := refreshClaims.Expiry()

	return &Session{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.Expiry(),
		RefreshExpiresAt: &refreshExp,
		User:             principal,
	}, nil
}

// Refresh exchanges a refresh token for a new access token. The principal is
// re-resolved so that a deactivated user cannot extend their session.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != RefreshToken {
		return nil, fmt.Errorf("%w: %s token presented for refresh", ErrInvalidToken, claims.Kind)
	}
	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
		}
	}

	principal, err := s.resolver.Resolve(ctx, claims)
	if err != nil {
		return nil, err
	}

	access, accessClaims, err := s.tokens.Issue(Identity{
		UserID: principal.ID,
		Role:   principal.Role,
		Scope:  principal.Scope,
	}, AccessToken)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:     access,
		AccessExpiresAt: accessClaims.Expiry(),
		User:            principal,
	}, nil
}

// Logout revokes the current access token and, when given, the caller's
// refresh token. Without a denylist it is a no-op: tokens simply expire.
func (s *SessionService) Logout(ctx context.Context, access *Claims, refreshToken string) error {
	if s.denylist == nil || access == nil {
		return nil
	}
	if err := s.denylist.Revoke(ctx, access.ID, access.Expiry()); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}

	refresh, err := s.tokens.Verify(refreshToken)
	if err != nil {
		// An already-invalid refresh token needs no revocation.
		return nil
	}
	if refresh.Kind != RefreshToken || refresh.Subject != access.Subject {
		return fmt.Errorf("%w: refresh token does not belong to caller", ErrInvalidToken)
	}
	return s.denylist.Revoke(ctx, refresh.ID, refresh.Expiry())
}

// DenylistEnabled reports whether logout actually revokes tokens.
func (s *SessionService) DenylistEnabled() bool {
	return s.denylist != nil
}
