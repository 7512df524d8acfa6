package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/awrenn/colonyfeed/client"
	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Action: func(c *cli.Context) error {
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))
			cl := client.NewClient(c.String("server-url"), nil, logger)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := cl.Health(ctx); err != nil {
				return fmt.Errorf("server unhealthy: %w", err)
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print CLI version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("colonyfeed %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
