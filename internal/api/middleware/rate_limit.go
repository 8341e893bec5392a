package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/livereview/reviewbridge/internal/apperrors"
	"github.com/livereview/reviewbridge/internal/logging"
	"github.com/livereview/reviewbridge/internal/ratelimit"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimit rejects clients that exceed the limiter's window with
// RATE_LIMIT_EXCEEDED. Clients are keyed by their real IP. Paths in exempt
// are never counted. A failing counter store lets the request through.
func RateLimit(limiter *ratelimit.Limiter, exempt ...string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip[c.Request().URL.Path] {
				return next(c)
			}

			ctx := c.Request().Context()
			decision, err := limiter.Allow(ctx, c.RealIP())
			if err != nil {
				logging.FromContext(ctx).Warn().Err(err).Msg("Rate limit store unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
			h.Set(HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				wait := decision.RetryAfter(time.Now())
				h.Set(HeaderRetryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				logging.FromContext(ctx).Warn().Str("client_ip", c.RealIP()).Msg("Rate limit exceeded")
				return apperrors.RateLimited("too many requests, retry later").
					WithDetail("retryAfterSeconds", int(math.Ceil(wait.Seconds())))
			}
			return next(c)
		}
	}
}
