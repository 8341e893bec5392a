package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/livereview/reviewbridge/internal/apperrors"
	"github.com/livereview/reviewbridge/internal/logging"
	"github.com/livereview/reviewbridge/internal/retry"
	"github.com/livereview/reviewbridge/internal/reviewmodel"
)

const (
	analyzePath = "/api/v1/analyze"
	healthPath  = "/health"
)

// AnalysisClient forwards diffs to the analysis service.
type AnalysisClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAnalysisClient returns a client for the analysis service at baseURL.
// Transport errors and 5xx responses are retried; deadlines come from the
// caller's context.
func NewAnalysisClient(baseURL string) *AnalysisClient {
	return &AnalysisClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: retry.NewClient(0, retry.DefaultRetryConfig()),
	}
}

// Analyze posts req and decodes the enveloped result. The correlation id in
// ctx is forwarded as X-Request-ID.
func (c *AnalysisClient) Analyze(ctx context.Context, req reviewmodel.AnalysisRequest) (reviewmodel.AnalysisResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return reviewmodel.AnalysisResult{}, apperrors.Internal("failed to encode analysis request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, bytes.NewReader(payload))
	if err != nil {
		return reviewmodel.AnalysisResult{}, apperrors.Internal("failed to build analysis request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if id := logging.RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set(logging.RequestIDHeader, id)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return reviewmodel.AnalysisResult{}, apperrors.Timeout("analysis service timed out", err)
		}
		return reviewmodel.AnalysisResult{}, apperrors.External("analysis service unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return reviewmodel.AnalysisResult{}, apperrors.Timeout("analysis service timed out", err)
		}
		return reviewmodel.AnalysisResult{}, apperrors.External("failed to read analysis response", err)
	}

	var env reviewmodel.RawEnvelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return reviewmodel.AnalysisResult{}, upstreamError(resp.StatusCode, env, decodeErr)
	}
	if decodeErr != nil {
		return reviewmodel.AnalysisResult{}, apperrors.External("analysis service returned an unreadable response", decodeErr)
	}

	var result reviewmodel.AnalysisResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return reviewmodel.AnalysisResult{}, apperrors.External("analysis service returned an unreadable result", err)
	}
	if result.Comments == nil {
		result.Comments = []reviewmodel.Finding{}
	}
	return result, nil
}

func upstreamError(status int, env reviewmodel.RawEnvelope, decodeErr error) *apperrors.Error {
	code := ""
	message := http.StatusText(status)
	if decodeErr == nil && env.Error != nil {
		code = env.Error.Code
		message = env.Error.Message
	}

	kind := apperrors.Kind(code)
	if code == "" {
		kind = apperrors.KindForStatus(status)
	}

	cause := fmt.Errorf("analysis service responded %d %s: %s", status, code, message)
	var appErr *apperrors.Error
	if kind == apperrors.KindTimeout {
		appErr = apperrors.Timeout("analysis service timed out", cause)
	} else {
		appErr = apperrors.External("analysis service failed", cause)
	}

	appErr = appErr.WithDetail("upstreamStatus", status)
	if code != "" {
		appErr = appErr.WithDetail("upstreamCode", code)
	}
	return appErr
}

// Health probes the analysis service's health endpoint.
func (c *AnalysisClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis service health returned %d", resp.StatusCode)
	}
	return nil
}
