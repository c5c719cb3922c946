package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// Role names carried in the "roles" claim.
const (
	RoleDonor     = "donor"
	RoleRecipient = "recipient"
	RoleDoctor    = "doctor"
	RoleAdmin     = "admin"
)

// ErrUnknownSubject is returned by a RoleSource when the token subject no
// longer exists. The request is rejected with 401.
var ErrUnknownSubject = errors.New("token subject not found")

// RoleSource returns the current roles of a token subject.
type RoleSource func(ctx context.Context, subject string) ([]string, error)

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	// Skipper bypasses authentication for the request when it returns true.
	Skipper func(c echo.Context) bool
	// Roles, when set, replaces the roles claim with a fresh lookup so role
	// changes and deletions apply before the token expires.
	Roles RoleSource
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	verifier := &Issuer{key: cfg.SigningKey, issuer: cfg.Issuer}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := bearerToken(c.Request())
			if err != nil {
				return err
			}

			claims, err := verifier.Parse(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			roles := claims.Roles
			if cfg.Roles != nil {
				roles, err = cfg.Roles(c.Request().Context(), claims.Subject)
				if errors.Is(err, ErrUnknownSubject) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
				if err != nil {
					return err
				}
			}

			c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), claims.Subject, roles)))
			return next(c)
		}
	}
}

// DevAuthMiddleware lets requests without an Authorization header through as
// an admin "dev-user". Requests that do carry a token are verified normally.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	strict := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return verified(c)
			}
			ctx := WithUser(c.Request().Context(), "dev-user", []string{RoleAdmin})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// WithUser stores the caller identity on ctx.
func WithUser(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
