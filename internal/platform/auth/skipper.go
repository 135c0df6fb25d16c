package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are route patterns reachable without a bearer token: health and
// metrics, plus the two endpoints that mint tokens.
var publicPaths = map[string]bool{
	"/health":              true,
	"/metrics":             true,
	"/api/v1/auth/login":   true,
	"/api/v1/auth/refresh": true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is a public route pattern.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
