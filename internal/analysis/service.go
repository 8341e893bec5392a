package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/livereview/reviewbridge/internal/apperrors"
	"github.com/livereview/reviewbridge/internal/config"
	"github.com/livereview/reviewbridge/internal/llm"
	"github.com/livereview/reviewbridge/internal/logging"
	"github.com/livereview/reviewbridge/internal/prompts"
	"github.com/livereview/reviewbridge/internal/reviewmodel"
)

// Completer is the model backend seen by the service.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Redactor scrubs secrets from diff text and reports the rules that matched.
type Redactor interface {
	Secrets(text string) (string, []string)
}

// Config holds the analysis service configuration
type Config struct {
	MaxDiffSize  int
	ModelTimeout time.Duration
	RepairJSON   bool
}

// ConfigFrom extracts the analysis settings from the process configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxDiffSize:  cfg.Analysis.MaxDiffSize,
		ModelTimeout: cfg.Analysis.ModelTimeout,
		RepairJSON:   cfg.LLM.RepairJSON,
	}
}

// Service validates analysis requests, calls the model and sanitizes replies.
type Service struct {
	completer Completer
	sanitizer llm.Sanitizer
	redactor  Redactor
	config    Config
}

// NewService creates a new analysis service
func NewService(completer Completer, cfg Config) *Service {
	return &Service{
		completer: completer,
		sanitizer: llm.Sanitizer{RepairJSON: cfg.RepairJSON},
		config:    cfg,
	}
}

// WithRedactor scrubs every validated diff with r before it reaches the model.
func (s *Service) WithRedactor(r Redactor) *Service {
	s.redactor = r
	return s
}

// Analyze runs one request through validation, the model and the sanitizer.
// Invalid requests never reach the model.
func (s *Service) Analyze(ctx context.Context, req reviewmodel.AnalysisRequest) (reviewmodel.AnalysisResult, error) {
	logger := logging.FromContext(ctx)

	if violations := req.Validate(s.config.MaxDiffSize); len(violations) > 0 {
		fields := make([]apperrors.FieldError, 0, len(violations))
		for _, v := range violations {
			fields = append(fields, apperrors.FieldError{Field: v.Field, Message: v.Message})
		}
		return reviewmodel.AnalysisResult{}, apperrors.Validation("invalid analysis request", fields...)
	}

	logger.Info().
		Str("repo", req.Repo).
		Int("pr_number", req.PRNumber).
		Int("diff_bytes", len(req.Diff)).
		Str("language", req.Language).
		Msg("Analyzing pull request diff")

	if s.redactor != nil {
		redacted, rules := s.redactor.Secrets(req.Diff)
		if len(rules) > 0 {
			logger.Warn().Strs("rules", rules).Msg("Redacted secrets from diff before model call")
			req.Diff = redacted
		}
	}

	modelCtx, cancel := context.WithTimeout(ctx, s.config.ModelTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.completer.Complete(modelCtx, prompts.SystemInstruction(), prompts.BuildReviewPrompt(req))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(modelCtx.Err(), context.DeadlineExceeded) {
			return reviewmodel.AnalysisResult{}, apperrors.Timeout("model backend timed out", err)
		}
		return reviewmodel.AnalysisResult{}, apperrors.External("model backend call failed", err)
	}

	logger.Debug().
		Dur("duration", time.Since(start)).
		Int("reply_bytes", len(raw)).
		Str("reply_preview", logging.Truncate(raw, 200)).
		Msg("Model replied")

	switch out := s.sanitizer.Sanitize(logger, raw).(type) {
	case llm.Ok:
		if out.Dropped > 0 {
			logger.Warn().Int("dropped", out.Dropped).Msg("Dropped malformed findings from model reply")
		}
		logger.Info().
			Int("findings", len(out.Result.Comments)).
			Dur("duration", time.Since(start)).
			Msg("Analysis completed")
		return out.Result, nil
	case llm.Malformed:
		logger.Error().
			Str("reason", out.Reason).
			Str("reply_preview", logging.Truncate(raw, 500)).
			Msg("Model reply rejected")
		return reviewmodel.AnalysisResult{}, apperrors.External("model backend returned an unusable response", errors.New(out.Reason))
	default:
		return reviewmodel.AnalysisResult{}, apperrors.Internal("unexpected sanitizer outcome", nil)
	}
}
