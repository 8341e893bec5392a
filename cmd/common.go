package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/livereview/reviewbridge/internal/config"
	"github.com/livereview/reviewbridge/internal/logging"
	"github.com/livereview/reviewbridge/internal/ratelimit"
)

var portFlag = &cli.IntFlag{
	Name:    "port",
	Aliases: []string{"p"},
	Usage:   "Override the listen port from the configuration",
}

// loadConfig applies the optional env file, loads the configuration and
// configures logging from it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if envFile := c.String("env-file"); envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

// newLimiter builds the per-client limiter over redis when configured, or
// process memory otherwise. The returned func releases the store.
func newLimiter(cfg config.RateLimitConfig) (*ratelimit.Limiter, func()) {
	if cfg.RedisURL != "" {
		store := ratelimit.NewRedisStore(cfg.RedisURL)
		log.Info().Msg("Rate limiting with redis counter store")
		return ratelimit.NewLimiter(store, cfg.Window, cfg.Max), func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close redis pool")
			}
		}
	}

	log.Info().Msg("Rate limiting with in-memory counter store")
	return ratelimit.NewLimiter(ratelimit.NewMemoryStore(), cfg.Window, cfg.Max), func() {}
}
