package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

var publicPaths = map[string]bool{
	"/health":    true,
	"/run-match": true,
}

var publicPrefixes = []string{
	"/api/v1/auth/signup",
	"/api/v1/auth/login",
	"/api/v1/faq",
}

// IsPublicPath reports whether path bypasses authentication.
func IsPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, p := range publicPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// NewSkipper returns a JWTConfig.Skipper for the public paths.
func NewSkipper() func(c echo.Context) bool {
	return func(c echo.Context) bool {
		return IsPublicPath(c.Request().URL.Path)
	}
}
