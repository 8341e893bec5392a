package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/livereview/reviewbridge/internal/logging"
)

// RequestIDKey is the echo context key holding the correlation identifier.
const RequestIDKey = "request_id"

// RequestContext assigns every request a fresh correlation identifier, binds
// a request logger to the request context and writes one access log line.
// An inbound X-Request-ID is logged as upstream_request_id but never reused.
func RequestContext(service string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			requestID := uuid.New().String()

			logger := logging.ForRequest(service, requestID, req.Method, req.URL.Path)
			if upstream := req.Header.Get(logging.RequestIDHeader); upstream != "" {
				logger = logger.With().Str("upstream_request_id", logging.Truncate(upstream, 128)).Logger()
			}

			ctx := logging.WithRequestID(logger.WithContext(req.Context()), requestID)
			c.SetRequest(req.WithContext(ctx))
			c.Set(RequestIDKey, requestID)
			c.Response().Header().Set(logging.RequestIDHeader, requestID)

			if err := next(c); err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			event := logger.Info()
			if status >= 500 {
				event = logger.Error()
			} else if status >= 400 {
				event = logger.Warn()
			}
			event.
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("Request completed")
			return nil
		}
	}
}

// RequestID returns the correlation identifier assigned by RequestContext.
func RequestID(c echo.Context) string {
	if id, ok := c.Get(RequestIDKey).(string); ok {
		return id
	}
	return logging.RequestIDFromContext(c.Request().Context())
}
