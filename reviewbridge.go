package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/livereview/reviewbridge/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "reviewbridge",
		Usage:   "Webhook intake gateway and LLM diff analysis service for pull request reviews",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "reviewbridge.toml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` before reading configuration",
			},
		},
		Commands: []*cli.Command{
			cmd.GatewayCommand(),
			cmd.AnalysisCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
