package cmd

import (
	"fmt"

	"github.com/joho/godotenv"

	"github.com/livereview/reviewbridge/internal/config"
)

// LoadEnvFile loads KEY=VALUE lines from filename into the process
// environment, overwriting existing values.
func LoadEnvFile(filename string) error {
	if err := godotenv.Overload(filename); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", filename, err)
	}
	return nil
}

// secretSummary lists the configured secrets with masked values.
func secretSummary(cfg *config.Config) map[string]string {
	secrets := map[string]string{
		"GITHUB_WEBHOOK_SECRET": cfg.GitHub.WebhookSecret,
		"GITHUB_TOKEN":          cfg.GitHub.Token,
		"LLM_API_KEY":           cfg.LLM.APIKey,
	}
	out := make(map[string]string, len(secrets))
	for name, value := range secrets {
		if value == "" {
			out[name] = "(not set)"
			continue
		}
		out[name] = maskSecret(value)
	}
	return out
}

// maskSecret shows only the first and last two characters of long values.
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}
