package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hfm/hfm/internal/platform/auth"
)

// Logger writes one line per request. The principal is added once the
// authenticator has resolved it; errors are handed on to the error handler
// and only their status is reflected here.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			var evt *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				evt = logger.Error().Err(err)
			case status >= http.StatusBadRequest:
				evt = logger.Warn()
				if he, ok := err.(*echo.HTTPError); ok && he.Internal != nil {
					evt = evt.AnErr("reason", he.Internal)
				}
			default:
				evt = logger.Info()
			}

			req := c.Request()
			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if p := auth.PrincipalFromContext(req.Context()); p != nil {
				evt = evt.Str("principal_id", p.ID.String()).Str("role", p.Role.String())
			}
			evt.Msg("request")

			return err
		}
	}
}
