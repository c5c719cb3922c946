package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "organlink",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, path, authHeader string) (echo.Context, error, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	called := false
	err := mw(func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	})(c)
	return c, err, called
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err, called := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "/api/v1/users", "")
	expectStatus(t, err, http.StatusUnauthorized)
	if called {
		t.Error("handler must not run without a token")
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "/", tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tok := createTestToken(t, validClaims("user-42", RoleDoctor), testSigningKey)
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "organlink"}

	c, err, called := runMiddleware(t, JWTMiddleware(cfg), "/", "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to be called")
	}
	ctx := c.Request().Context()
	if got := UserIDFromContext(ctx); got != "user-42" {
		t.Errorf("expected user-42, got %s", got)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleDoctor {
		t.Errorf("expected [doctor], got %v", roles)
	}
}

func TestJWTMiddleware_RolesFromSource(t *testing.T) {
	tok := createTestToken(t, validClaims("user-42", RoleDonor), testSigningKey)
	current := map[string][]string{"user-42": {RoleDoctor}}
	cfg := JWTConfig{
		SigningKey: testSigningKey,
		Roles: func(_ context.Context, subject string) ([]string, error) {
			roles, ok := current[subject]
			if !ok {
				return nil, ErrUnknownSubject
			}
			return roles, nil
		},
	}

	c, err, called := runMiddleware(t, JWTMiddleware(cfg), "/", "Bearer "+tok)
	if err != nil || !called {
		t.Fatalf("expected pass-through, got err=%v called=%v", err, called)
	}
	if roles := RolesFromContext(c.Request().Context()); len(roles) != 1 || roles[0] != RoleDoctor {
		t.Errorf("expected the current role [doctor], got %v", roles)
	}

	delete(current, "user-42")
	_, err, called = runMiddleware(t, JWTMiddleware(cfg), "/", "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
	if called {
		t.Error("handler should not run for a deleted subject")
	}
}

func TestJWTMiddleware_RoleSourceFailure(t *testing.T) {
	tok := createTestToken(t, validClaims("user-42", RoleDonor), testSigningKey)
	boom := errors.New("directory unavailable")
	cfg := JWTConfig{
		SigningKey: testSigningKey,
		Roles:      func(context.Context, string) ([]string, error) { return nil, boom },
	}
	_, err, called := runMiddleware(t, JWTMiddleware(cfg), "/", "Bearer "+tok)
	if !errors.Is(err, boom) || called {
		t.Errorf("expected lookup error to stop the request, got err=%v called=%v", err, called)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tok := createTestToken(t, validClaims("user-1"), []byte("some-other-key-entirely-different"))
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "/", "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Expired(t *testing.T) {
	claims := validClaims("user-1")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	tok := createTestToken(t, claims, testSigningKey)
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "/", "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongIssuer(t *testing.T) {
	claims := validClaims("user-1")
	claims.Issuer = "someone-else"
	tok := createTestToken(t, claims, testSigningKey)
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "organlink"}
	_, err, _ := runMiddleware(t, JWTMiddleware(cfg), "/", "Bearer "+tok)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_SkipperBypasses(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Skipper: NewSkipper()}
	_, err, called := runMiddleware(t, JWTMiddleware(cfg), "/health", "")
	if err != nil || !called {
		t.Fatalf("expected /health to bypass auth, err=%v called=%v", err, called)
	}
}

func TestDevAuthMiddleware_DefaultsToAdmin(t *testing.T) {
	c, err, called := runMiddleware(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "/", "")
	if err != nil || !called {
		t.Fatalf("expected pass-through, err=%v", err)
	}
	if UserIDFromContext(c.Request().Context()) != "dev-user" {
		t.Error("expected dev-user identity")
	}
	if !IsAdmin(c.Request().Context()) {
		t.Error("expected dev-user to be admin")
	}
}

func TestDevAuthMiddleware_StillVerifiesTokens(t *testing.T) {
	_, err, called := runMiddleware(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "/", "Bearer garbage")
	expectStatus(t, err, http.StatusUnauthorized)
	if called {
		t.Error("invalid token must not reach the handler")
	}
}
