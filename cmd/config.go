package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/livereview/reviewbridge/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "reviewbridge.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration for both services",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return reportConfig(c.App.Writer, cfg)
}

// reportConfig prints the per-role validation result and masked secrets. It
// fails when either role is misconfigured.
func reportConfig(w io.Writer, cfg *config.Config) error {
	roles := []struct {
		name     string
		validate func() error
	}{
		{"gateway", cfg.ValidateGateway},
		{"analysis", cfg.ValidateAnalysis},
	}

	failed := 0
	for _, role := range roles {
		if err := role.validate(); err != nil {
			failed++
			fmt.Fprintf(w, "%-9s invalid: %v\n", role.name, err)
			continue
		}
		fmt.Fprintf(w, "%-9s ok\n", role.name)
	}

	secrets := secretSummary(cfg)
	names := make([]string, 0, len(secrets))
	for name := range secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s = %s\n", name, secrets[name])
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d roles have invalid configuration", failed, len(roles))
	}
	return nil
}
