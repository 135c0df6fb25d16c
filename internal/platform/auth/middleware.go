package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hfm/hfm/internal/platform/telemetry"
)

// PrincipalContextKey is the echo.Context key under which the resolved
// principal is also stored, for request logging.
const PrincipalContextKey = "principal"

type claimsKey struct{}

// ClaimsFromContext returns the verified token claims of the current request.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// AuthenticatorConfig wires the authentication chain.
type AuthenticatorConfig struct {
	Tokens   *TokenIssuer
	Resolver *Resolver
	// Denylist is optional.
	Denylist Denylist
	Metrics  *telemetry.Metrics
	Logger   zerolog.Logger
	// Skipper bypasses authentication for public routes.
	Skipper func(echo.Context) bool
}

// Authenticator runs token verification followed by principal resolution.
type Authenticator struct {
	cfg AuthenticatorConfig
}

func NewAuthenticator(cfg AuthenticatorConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingCredential
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingCredential
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}

// Authenticate verifies an access token and resolves its principal from
// storage. Refresh tokens are rejected here: they are only ever exchanged for
// a new access token.
func (a *Authenticator) Authenticate(ctx context.Context, authHeader string) (*Principal, *Claims, error) {
	tokenStr, err := BearerToken(authHeader)
	if err != nil {
		return nil, nil, err
	}

	claims, err := a.cfg.Tokens.Verify(tokenStr)
	if err != nil {
		return nil, nil, err
	}
	if claims.Kind != AccessToken {
		return nil, nil, fmt.Errorf("%w: %s token used as access token", ErrInvalidToken, claims.Kind)
	}

	if a.cfg.Denylist != nil {
		revoked, err := a.cfg.Denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, nil, err
		}
		if revoked {
			return nil, nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
		}
	}

	principal, err := a.cfg.Resolver.Resolve(ctx, claims)
	if err != nil {
		return nil, nil, err
	}
	return principal, claims, nil
}

// Middleware attaches the resolved Principal to the request context. Every
// resolution failure produces the same 401 body.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if a.cfg.Skipper != nil && a.cfg.Skipper(c) {
				return next(c)
			}

			ctx := c.Request().Context()
			principal, claims, err := a.Authenticate(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return a.reject(c, err)
			}

			ctx = WithPrincipal(ctx, principal)
			ctx = context.WithValue(ctx, claimsKey{}, claims)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(PrincipalContextKey, principal)

			return next(c)
		}
	}
}

func (a *Authenticator) reject(c echo.Context, err error) error {
	reason := failureReason(err)
	a.cfg.Metrics.AuthFailed(reason)

	switch {
	case reason == "missing_credential":
		return echo.NewHTTPError(http.StatusUnauthorized, MsgAccessTokenRequired).SetInternal(err)
	case IsSessionError(err):
		a.cfg.Logger.Warn().
			Str("reason", reason).
			Str("path", c.Request().URL.Path).
			Str("remote_ip", c.RealIP()).
			Msg("session rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, MsgInvalidToken).SetInternal(err)
	default:
		return fmt.Errorf("authenticate: %w", err)
	}
}
