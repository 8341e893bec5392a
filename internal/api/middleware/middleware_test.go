package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livereview/reviewbridge/internal/apperrors"
	"github.com/livereview/reviewbridge/internal/logging"
	"github.com/livereview/reviewbridge/internal/ratelimit"
)

func newContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func ok(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func TestRequestContext_AssignsFreshID(t *testing.T) {
	var buf bytes.Buffer
	logging.SetupWriter(&buf, "info", "json")
	t.Cleanup(func() { logging.SetupWriter(&bytes.Buffer{}, "info", "json") })

	c, rec := newContext(http.MethodGet, "/health")
	c.Request().Header.Set(logging.RequestIDHeader, "caller-supplied")

	var seenCtxID, seenEchoID string
	handler := RequestContext("gateway")(func(c echo.Context) error {
		seenCtxID = logging.RequestIDFromContext(c.Request().Context())
		seenEchoID = RequestID(c)
		return ok(c)
	})
	require.NoError(t, handler(c))

	id := rec.Header().Get(logging.RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, "caller-supplied", id)
	assert.Equal(t, id, seenCtxID)
	assert.Equal(t, id, seenEchoID)

	out := buf.String()
	assert.Contains(t, out, `"upstream_request_id":"caller-supplied"`)
	assert.Contains(t, out, `"request_id":"`+id+`"`)
	assert.Contains(t, out, `"service":"gateway"`)
	assert.Contains(t, out, `"status":200`)
}

func TestRequestContext_ErrorsAreRenderedOnce(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/boom")
	calls := 0
	c.Echo().HTTPErrorHandler = func(err error, c echo.Context) {
		calls++
		_ = c.NoContent(http.StatusTeapot)
	}

	handler := RequestContext("analysis")(func(c echo.Context) error {
		return errors.New("boom")
	})
	require.NoError(t, handler(c))
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRateLimit_SetsHeadersAndRejects(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), time.Hour, 2)
	mw := RateLimit(limiter, "/health")(ok)

	for i := 0; i < 2; i++ {
		c, rec := newContext(http.MethodPost, "/webhook/github")
		require.NoError(t, mw(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get(HeaderRateLimitLimit))
		assert.NotEmpty(t, rec.Header().Get(HeaderRateLimitReset))
	}

	c, rec := newContext(http.MethodPost, "/webhook/github")
	err := mw(c)
	assert.Equal(t, apperrors.KindRateLimit, apperrors.KindOf(err))
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	assert.NotEmpty(t, rec.Header().Get(HeaderRetryAfter))
}

func TestRateLimit_KeysByClient(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), time.Hour, 1)
	mw := RateLimit(limiter)(ok)

	c, _ := newContext(http.MethodPost, "/api/v1/analyze")
	require.NoError(t, mw(c))

	other, rec := newContext(http.MethodPost, "/api/v1/analyze")
	other.Request().RemoteAddr = "10.9.9.9:1234"
	require.NoError(t, mw(other))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_HealthExempt(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), time.Hour, 1)
	mw := RateLimit(limiter, "/health")(ok)

	for i := 0; i < 5; i++ {
		c, rec := newContext(http.MethodGet, "/health")
		require.NoError(t, mw(c))
		assert.Empty(t, rec.Header().Get(HeaderRateLimitLimit))
	}
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func (brokenStore) Count(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mw := RateLimit(ratelimit.NewLimiter(brokenStore{}, time.Minute, 1))(ok)

	for i := 0; i < 3; i++ {
		c, rec := newContext(http.MethodPost, "/webhook/github")
		require.NoError(t, mw(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
