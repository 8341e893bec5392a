package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v71/github"
	"golang.org/x/time/rate"

	"github.com/livereview/reviewbridge/internal/config"
	"github.com/livereview/reviewbridge/internal/logging"
	"github.com/livereview/reviewbridge/internal/retry"
)

// DiffMediaType is the Accept value that makes GitHub return a unified diff.
const DiffMediaType = "application/vnd.github.v3.diff"

// ReviewEventComment is the neutral review disposition.
const ReviewEventComment = "COMMENT"

// diffMediaTypes are the Content-Type values accepted from the diff endpoint.
var diffMediaTypes = map[string]bool{
	"text/plain":                  true,
	"text/x-diff":                 true,
	"text/x-patch":                true,
	DiffMediaType:                 true,
	"application/vnd.github.diff": true,
}

// Outbound API calls are throttled to stay well below GitHub's secondary limits.
const (
	apiRequestsPerSecond = 10
	apiBurst             = 10
)

// PullRequestDiff is the diff of one pull request plus metadata the gateway
// forwards alongside it.
type PullRequestDiff struct {
	Text     string
	Language string
	HeadSHA  string
}

// APIClient talks to the GitHub REST API on behalf of the gateway.
type APIClient struct {
	fetch   *github.Client
	publish *github.Client
	limiter *rate.Limiter
}

// NewAPIClient builds a client from the github config section. Diff retrieval
// goes through the retrying transport; publication does not retry.
func NewAPIClient(cfg config.GitHubConfig) (*APIClient, error) {
	return newAPIClient(cfg,
		&http.Client{Transport: retry.NewTransport(http.DefaultTransport, retry.DefaultRetryConfig())},
		&http.Client{Transport: http.DefaultTransport},
	)
}

func newAPIClient(cfg config.GitHubConfig, fetchHTTP, publishHTTP *http.Client) (*APIClient, error) {
	fetch, err := newGitHubClient(cfg, fetchHTTP)
	if err != nil {
		return nil, err
	}
	publish, err := newGitHubClient(cfg, publishHTTP)
	if err != nil {
		return nil, err
	}
	return &APIClient{
		fetch:   fetch,
		publish: publish,
		limiter: rate.NewLimiter(rate.Limit(apiRequestsPerSecond), apiBurst),
	}, nil
}

func newGitHubClient(cfg config.GitHubConfig, httpClient *http.Client) (*github.Client, error) {
	client := github.NewClient(httpClient).WithAuthToken(cfg.Token)
	if cfg.APIURL == "" {
		return client, nil
	}

	apiURL := cfg.APIURL
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	base, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid github api url %q: %w", cfg.APIURL, err)
	}
	client.BaseURL = base
	return client, nil
}

// FetchDiff looks up the pull request's diff locator and downloads the diff
// text. Any failure is reported as one error naming the pull request.
func (c *APIClient) FetchDiff(ctx context.Context, owner, repo string, number int) (PullRequestDiff, error) {
	logger := logging.FromContext(ctx)

	if err := c.wait(ctx); err != nil {
		return PullRequestDiff{}, fmt.Errorf("fetching diff for %s/%s#%d: %w", owner, repo, number, err)
	}

	pr, _, err := c.fetch.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return PullRequestDiff{}, fmt.Errorf("fetching diff for %s/%s#%d: pull request lookup: %w", owner, repo, number, err)
	}

	diffURL := pr.GetDiffURL()
	if diffURL == "" {
		return PullRequestDiff{}, fmt.Errorf("fetching diff for %s/%s#%d: pull request has no diff url", owner, repo, number)
	}

	req, err := c.fetch.NewRequest(http.MethodGet, diffURL, nil)
	if err != nil {
		return PullRequestDiff{}, fmt.Errorf("fetching diff for %s/%s#%d: %w", owner, repo, number, err)
	}
	req.Header.Set("Accept", DiffMediaType)

	if err := c.wait(ctx); err != nil {
		return PullRequestDiff{}, fmt.Errorf("fetching diff for %s/%s#%d: %w", owner, repo, number, err)
	}

	var buf bytes.Buffer
	resp, err := c.fetch.Do(ctx, req, &buf)
	if err != nil {
		return PullRequestDiff{}, fmt.Errorf("fetching diff for %s/%s#%d: diff download: %w", owner, repo, number, err)
	}
	if err := checkDiffContentType(resp.Header.Get("Content-Type"), buf.Len()); err != nil {
		return PullRequestDiff{}, fmt.Errorf("fetching diff for %s/%s#%d: %w", owner, repo, number, err)
	}

	result := PullRequestDiff{
		Text:     buf.String(),
		Language: strings.ToLower(pr.GetBase().GetRepo().GetLanguage()),
		HeadSHA:  pr.GetHead().GetSHA(),
	}

	logger.Debug().
		Str("repo", owner+"/"+repo).
		Int("pr_number", number).
		Int("diff_bytes", len(result.Text)).
		Str("language", result.Language).
		Str("head_sha", result.HeadSHA).
		Msg("Fetched pull request diff")

	return result, nil
}

// checkDiffContentType rejects responses that are not diff text, such as an
// HTML sign-in page. A missing header is tolerated only for an empty body.
func checkDiffContentType(contentType string, size int) error {
	if contentType == "" {
		if size == 0 {
			return nil
		}
		return fmt.Errorf("diff response has no content type")
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("diff response has invalid content type %q: %w", contentType, err)
	}
	if !diffMediaTypes[mediaType] {
		return fmt.Errorf("diff response is %s, not diff text", mediaType)
	}
	return nil
}

// wait takes a token from the outbound limiter. The limiter refuses early
// when the deadline leaves no room for the wait, and that refusal is reported
// as a deadline expiry so callers classify it as a timeout.
func (c *APIClient) wait(ctx context.Context) error {
	err := c.limiter.Wait(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("rate limiter: %v: %w", err, context.DeadlineExceeded)
	}
	return err
}

// PublishReview creates one pull request review with a neutral disposition.
func (c *APIClient) PublishReview(ctx context.Context, owner, repo string, number int, body string) error {
	logger := logging.FromContext(ctx)

	if err := c.wait(ctx); err != nil {
		return fmt.Errorf("publishing review for %s/%s#%d: %w", owner, repo, number, err)
	}

	review, _, err := c.publish.PullRequests.CreateReview(ctx, owner, repo, number, &github.PullRequestReviewRequest{
		Body:  github.Ptr(body),
		Event: github.Ptr(ReviewEventComment),
	})
	if err != nil {
		return fmt.Errorf("publishing review for %s/%s#%d: %w", owner, repo, number, err)
	}

	logger.Info().
		Str("repo", owner+"/"+repo).
		Int("pr_number", number).
		Int64("review_id", review.GetID()).
		Msg("Published pull request review")
	return nil
}
