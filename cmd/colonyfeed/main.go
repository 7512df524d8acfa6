package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "colonyfeed",
		Usage: "Colony on-chain activity feed CLI",
		Description: `A command-line tool for inspecting the colonyfeed service.

Use this CLI to fetch the aggregated activity feed, resolve payout
recipients, and check server health.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Feed commands (HTTP API)
			{
				Name:  "feed",
				Usage: "Activity feed commands",
				Subcommands: []*cli.Command{
					getFeedCommand(),
					getRecipientCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "colonyfeed server URL",
				EnvVars: []string{"COLONYFEED_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
