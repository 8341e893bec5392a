package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/livereview/reviewbridge/internal/api"
	githubout "github.com/livereview/reviewbridge/internal/provider_output/github"
	"github.com/livereview/reviewbridge/internal/review"
	"github.com/livereview/reviewbridge/internal/webhookutils"
)

// GatewayCommand starts the webhook intake gateway.
func GatewayCommand() *cli.Command {
	return &cli.Command{
		Name:   "gateway",
		Usage:  "Start the webhook intake gateway",
		Flags:  []cli.Flag{portFlag},
		Action: runGateway,
	}
}

func runGateway(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Gateway.Port = c.Int("port")
	}
	if err := cfg.ValidateGateway(); err != nil {
		return fmt.Errorf("invalid gateway configuration: %w", err)
	}

	verifier := webhookutils.NewVerifier(cfg.GitHub.WebhookSecret)
	if !verifier.Enabled() {
		log.Warn().Msg("GITHUB_WEBHOOK_SECRET is not set, webhook signatures will not be verified")
	}

	githubClient, err := githubout.NewAPIClient(cfg.GitHub)
	if err != nil {
		return fmt.Errorf("failed to create github client: %w", err)
	}
	analysisClient := review.NewAnalysisClient(cfg.Gateway.ReviewServiceURL)

	pipeline := review.NewPipeline(verifier, githubClient, analysisClient, githubClient, review.TimeoutsFrom(cfg.Gateway))

	limiter, closeLimiter := newLimiter(cfg.RateLimit)
	defer closeLimiter()

	server := api.NewGatewayServer(cfg, pipeline, limiter, api.Dependency{
		Name:  "analysis_service",
		Check: analysisClient.Health,
	})

	log.Info().
		Int("port", cfg.Gateway.Port).
		Str("review_service_url", cfg.Gateway.ReviewServiceURL).
		Msg("Starting intake gateway")
	return server.Start()
}
