package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hfm/hfm/internal/platform/telemetry"
)

// Authorize admits p iff its role is a member of allowed. Tenant scope plays
// no part here; handlers compare scope against their target themselves.
func Authorize(p *Principal, allowed RoleSet) error {
	if p == nil {
		return ErrMissingCredential
	}
	if !allowed.Has(p.Role) {
		return fmt.Errorf("%w: role %s not in [%s]", ErrForbidden, p.Role, allowed)
	}
	return nil
}

// RequireRoles returns the authorization gate for a route. It must run after
// the Authenticator middleware.
func RequireRoles(metrics *telemetry.Metrics, allowed RoleSet) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromContext(c.Request().Context())
			if err := Authorize(p, allowed); err != nil {
				metrics.AuthFailed(failureReason(err))
				if p == nil {
					return echo.NewHTTPError(http.StatusUnauthorized, MsgAccessTokenRequired).SetInternal(err)
				}
				return echo.NewHTTPError(http.StatusForbidden, MsgForbidden).SetInternal(err)
			}
			metrics.AuthSucceeded()
			return next(c)
		}
	}
}
