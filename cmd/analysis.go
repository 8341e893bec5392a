package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/livereview/reviewbridge/internal/aiconnectors"
	"github.com/livereview/reviewbridge/internal/analysis"
	"github.com/livereview/reviewbridge/internal/api"
	"github.com/livereview/reviewbridge/internal/redact"
)

// AnalysisCommand starts the analysis service.
func AnalysisCommand() *cli.Command {
	return &cli.Command{
		Name:   "analysis",
		Usage:  "Start the diff analysis service",
		Flags:  []cli.Flag{portFlag},
		Action: runAnalysis,
	}
}

func runAnalysis(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Analysis.Port = c.Int("port")
	}
	if err := cfg.ValidateAnalysis(); err != nil {
		return fmt.Errorf("invalid analysis configuration: %w", err)
	}

	connector, err := aiconnectors.NewConnector(c.Context, aiconnectors.OptionsFromConfig(cfg.LLM))
	if err != nil {
		return fmt.Errorf("failed to create model backend: %w", err)
	}

	service := analysis.NewService(connector, analysis.ConfigFrom(cfg))
	if cfg.Analysis.RedactSecrets {
		redactor, err := redact.New()
		if err != nil {
			return err
		}
		service.WithRedactor(redactor)
	} else {
		log.Warn().Msg("Secret redaction disabled, diffs reach the model backend unmodified")
	}

	limiter, closeLimiter := newLimiter(cfg.RateLimit)
	defer closeLimiter()

	server := api.NewAnalysisServer(cfg, service, limiter, api.Dependency{
		Name:  "model_backend",
		Check: connector.Check,
	})

	log.Info().
		Int("port", cfg.Analysis.Port).
		Str("provider", string(connector.GetProvider())).
		Str("model", connector.GetModel()).
		Int("max_diff_size", cfg.Analysis.MaxDiffSize).
		Bool("redact_secrets", cfg.Analysis.RedactSecrets).
		Msg("Starting analysis service")
	return server.Start()
}
