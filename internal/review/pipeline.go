package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/livereview/reviewbridge/internal/apperrors"
	"github.com/livereview/reviewbridge/internal/config"
	"github.com/livereview/reviewbridge/internal/diff"
	"github.com/livereview/reviewbridge/internal/logging"
	githubin "github.com/livereview/reviewbridge/internal/provider_input/github"
	githubout "github.com/livereview/reviewbridge/internal/provider_output/github"
	"github.com/livereview/reviewbridge/internal/reviewmodel"
	"github.com/livereview/reviewbridge/internal/webhookutils"
)

// Pipeline stages named in error details.
const (
	StageDiffFetch = "diff_fetch"
	StageForward   = "forward"
	StagePublish   = "publish"
)

// Outcome statuses.
const (
	StatusIgnored   = "ignored"
	StatusNoChanges = "no_changes"
	StatusReviewed  = "reviewed"
)

// Reasons for an ignored delivery.
const (
	ReasonUnsupportedEvent  = "unsupported_event"
	ReasonUnsupportedAction = "unsupported_action"
)

// DiffSource retrieves pull request diffs from the provider.
type DiffSource interface {
	FetchDiff(ctx context.Context, owner, repo string, number int) (githubout.PullRequestDiff, error)
}

// Analyzer produces an analysis for a diff.
type Analyzer interface {
	Analyze(ctx context.Context, req reviewmodel.AnalysisRequest) (reviewmodel.AnalysisResult, error)
}

// Publisher posts the rendered review back to the pull request.
type Publisher interface {
	PublishReview(ctx context.Context, owner, repo string, number int, body string) error
}

// Timeouts bounds each outbound hop.
type Timeouts struct {
	DiffFetch time.Duration
	Forward   time.Duration
	Publish   time.Duration
}

// TimeoutsFrom extracts the hop budgets from the gateway config section.
func TimeoutsFrom(cfg config.GatewayConfig) Timeouts {
	return Timeouts{
		DiffFetch: cfg.DiffFetchTimeout,
		Forward:   cfg.ForwardTimeout,
		Publish:   cfg.PublishTimeout,
	}
}

// Outcome is the successful result of handling one delivery.
type Outcome struct {
	Status    string
	Reason    string
	Forwarded bool
	Posted    bool
	Findings  int
}

// MarshalJSON renders only the fields meaningful for the status.
func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o.Status {
	case StatusIgnored:
		return json.Marshal(struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
		}{o.Status, o.Reason})
	case StatusReviewed:
		return json.Marshal(struct {
			Status    string `json:"status"`
			Forwarded bool   `json:"forwardedToReviewService"`
			Posted    bool   `json:"postedReviewToGitHub"`
			Findings  int    `json:"findings"`
		}{o.Status, o.Forwarded, o.Posted, o.Findings})
	default:
		return json.Marshal(struct {
			Status    string `json:"status"`
			Forwarded bool   `json:"forwardedToReviewService"`
			Posted    bool   `json:"postedReviewToGitHub"`
		}{o.Status, o.Forwarded, o.Posted})
	}
}

// Pipeline turns one webhook delivery into at most one published review.
// Stages run strictly in order; any stage failure ends the run.
type Pipeline struct {
	verifier  *webhookutils.Verifier
	diffs     DiffSource
	analyzer  Analyzer
	publisher Publisher
	timeouts  Timeouts
}

// NewPipeline wires the pipeline stages together.
func NewPipeline(verifier *webhookutils.Verifier, diffs DiffSource, analyzer Analyzer, publisher Publisher, timeouts Timeouts) *Pipeline {
	return &Pipeline{
		verifier:  verifier,
		diffs:     diffs,
		analyzer:  analyzer,
		publisher: publisher,
		timeouts:  timeouts,
	}
}

// Handle runs the pipeline for event. Remote calls run on a context detached
// from ctx's cancellation, each bounded by its own timeout.
func (p *Pipeline) Handle(ctx context.Context, event *githubin.PullRequestEvent) (Outcome, error) {
	logger := logging.FromContext(ctx)

	if err := p.verifier.Verify(logger, event.RawBody, event.Signature); err != nil {
		logger.Warn().Err(err).Str("delivery_id", event.DeliveryID).Msg("Webhook signature rejected")
		return Outcome{}, apperrors.Authentication("invalid webhook signature")
	}

	if !event.IsPullRequestKind() {
		logger.Info().Str("event", event.EventKind).Msg("Ignoring unsupported webhook event")
		return Outcome{Status: StatusIgnored, Reason: ReasonUnsupportedEvent}, nil
	}

	if err := event.Decode(); err != nil {
		return Outcome{}, err
	}

	if !event.IsActionable() {
		logger.Info().Str("action", event.Action).Msg("Ignoring unsupported pull request action")
		return Outcome{Status: StatusIgnored, Reason: ReasonUnsupportedAction}, nil
	}

	owner, repo, number, err := event.Identity()
	if err != nil {
		return Outcome{}, err
	}
	fullName := owner + "/" + repo

	prLogger := logger.With().Str("repo", fullName).Int("pr_number", number).Str("action", event.Action).Logger()
	prLogger.Info().
		Str("delivery_id", event.DeliveryID).
		Str("head_sha", event.HeadSHA).
		Msg("Processing pull request event")

	detached := prLogger.WithContext(context.WithoutCancel(ctx))

	prDiff, err := p.fetchDiff(detached, owner, repo, number)
	if err != nil {
		return Outcome{}, stageError(StageDiffFetch, fmt.Sprintf("failed to fetch diff for %s#%d", fullName, number), err)
	}

	if strings.TrimSpace(prDiff.Text) == "" {
		prLogger.Info().Msg("Pull request has no changes, skipping review")
		return Outcome{Status: StatusNoChanges}, nil
	}

	req := reviewmodel.AnalysisRequest{
		Repo:     fullName,
		PRNumber: number,
		Diff:     prDiff.Text,
		Language: p.languageFor(&prLogger, prDiff),
	}

	result, err := p.forward(detached, req)
	if err != nil {
		return Outcome{}, stageError(StageForward, fmt.Sprintf("analysis failed for %s#%d", fullName, number), err)
	}

	body := githubout.RenderReviewBody(result, logging.RequestIDFromContext(ctx))
	if err := p.publish(detached, owner, repo, number, body); err != nil {
		return Outcome{}, stageError(StagePublish, fmt.Sprintf("failed to publish review for %s#%d", fullName, number), err)
	}

	prLogger.Info().Int("findings", len(result.Comments)).Msg("Review published")
	return Outcome{
		Status:    StatusReviewed,
		Forwarded: true,
		Posted:    true,
		Findings:  len(result.Comments),
	}, nil
}

func (p *Pipeline) fetchDiff(ctx context.Context, owner, repo string, number int) (githubout.PullRequestDiff, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.DiffFetch)
	defer cancel()
	return p.diffs.FetchDiff(ctx, owner, repo, number)
}

func (p *Pipeline) forward(ctx context.Context, req reviewmodel.AnalysisRequest) (reviewmodel.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Forward)
	defer cancel()
	return p.analyzer.Analyze(ctx, req)
}

func (p *Pipeline) publish(ctx context.Context, owner, repo string, number int, body string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Publish)
	defer cancel()
	return p.publisher.PublishReview(ctx, owner, repo, number, body)
}

// languageFor prefers the repository language and falls back to the most
// common file extension in the diff.
func (p *Pipeline) languageFor(logger *zerolog.Logger, prDiff githubout.PullRequestDiff) string {
	stats, err := diff.Summarize(prDiff.Text)
	if err != nil {
		logger.Debug().Err(err).Msg("Could not parse diff for statistics")
		return prDiff.Language
	}

	logger.Info().
		Int("files", stats.Files).
		Int("additions", stats.Additions).
		Int("deletions", stats.Deletions).
		Int("binary_files", stats.Binary).
		Msg("Fetched pull request diff")

	if prDiff.Language != "" {
		return prDiff.Language
	}
	return diff.InferLanguage(stats.Names)
}

// stageError classifies err and tags it with the failing stage.
func stageError(stage, message string, err error) error {
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		appErr = &apperrors.Error{
			Kind:    appErr.Kind,
			Message: message + ": " + appErr.Message,
			Details: copyDetails(appErr.Details),
			Fields:  appErr.Fields,
			Err:     appErr.Err,
		}
	case errors.Is(err, context.DeadlineExceeded):
		appErr = apperrors.Timeout(message+": timed out", err)
	default:
		appErr = apperrors.External(message, err)
	}
	return appErr.WithDetail("stage", stage)
}

func copyDetails(in map[string]interface{}) map[string]interface{} {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
