package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequestTimeout_CompletesWithinDeadline(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/matches", nil), rec)

	if err := RequestTimeout(5 * time.Second)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequestTimeout_ReturnsTimeoutOnExpiry(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/matches/run", nil), rec)

	slow := func(c echo.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return c.String(http.StatusOK, "ok")
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	if err := RequestTimeout(20 * time.Millisecond)(slow)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rec.Code)
	}
}

func TestRequestTimeout_WaitsForHandler(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/users", nil), rec)

	var finished atomic.Bool
	stubborn := func(c echo.Context) error {
		time.Sleep(60 * time.Millisecond)
		finished.Store(true)
		return c.String(http.StatusOK, "late")
	}

	if err := RequestTimeout(10 * time.Millisecond)(stubborn)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !finished.Load() {
		t.Fatal("middleware returned while the handler was still using the context")
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "late" {
		t.Errorf("expected the handler's own response, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequestTimeout_PassesOtherErrors(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/matches", nil), httptest.NewRecorder())

	failing := func(echo.Context) error { return echo.ErrNotFound }
	if err := RequestTimeout(time.Second)(failing)(c); err != echo.ErrNotFound {
		t.Errorf("expected ErrNotFound to pass through, got %v", err)
	}
}

func TestRequestTimeout_SkipsWebSocket(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil), httptest.NewRecorder())

	var hasDeadline bool
	h := func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return nil
	}
	if err := RequestTimeout(time.Second)(h)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasDeadline {
		t.Error("websocket path should not get a deadline")
	}
}
