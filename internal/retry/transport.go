package retry

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Transport is an http.RoundTripper that retries transport errors and 5xx
// responses with exponential backoff. 4xx responses are returned untouched.
type Transport struct {
	Base   http.RoundTripper
	Config RetryConfig
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, config RetryConfig) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Config: config}
}

// NewClient returns an http.Client using a retrying transport. timeout bounds
// all attempts together.
func NewClient(timeout time.Duration, config RetryConfig) *http.Client {
	return &http.Client{Timeout: timeout, Transport: NewTransport(nil, config)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	logger := zerolog.Ctx(ctx).With().
		Str("method", req.Method).
		Str("host", req.URL.Host).
		Logger()

	var resp *http.Response
	attempt := 0

	result := RetryWithBackoffAndReason(ctx, t.Config, func() (error, string) {
		outReq := req
		if attempt > 0 {
			cloned, err := rewind(req)
			if err != nil {
				return Permanent(err), "body_not_replayable"
			}
			outReq = cloned
		}
		attempt++

		res, err := t.Base.RoundTrip(outReq)
		if err != nil {
			if ctx.Err() != nil {
				return Permanent(err), "context_done"
			}
			return err, "transport_error"
		}

		if res.StatusCode >= http.StatusInternalServerError && attempt <= t.Config.MaxRetries {
			_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
			res.Body.Close()
			return fmt.Errorf("upstream responded %d", res.StatusCode), fmt.Sprintf("status_%d", res.StatusCode)
		}

		resp = res
		return nil, ""
	}, &logger)

	if !result.Success {
		return nil, result.LastError
	}
	return resp, nil
}

func rewind(req *http.Request) (*http.Request, error) {
	cloned := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return cloned, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body for %s %s cannot be replayed", req.Method, req.URL.Redacted())
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	cloned.Body = body
	return cloned, nil
}
