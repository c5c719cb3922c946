package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestTimeout puts a deadline on each request context. The handler runs
// on the request goroutine; when it gives up with context.DeadlineExceeded
// the client gets a 504. WebSocket upgrades are skipped because they are
// long-lived.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout: timeout,
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/ws")
		},
		ErrorHandler: timeoutError,
	})
}

func timeoutError(err error, c echo.Context) error {
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if c.Response().Committed {
		return nil
	}
	return c.JSON(http.StatusGatewayTimeout, map[string]string{
		"error": "request processing exceeded the allowed time limit",
	})
}
