package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/awrenn/colonyfeed/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func getFeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Fetch the aggregated activity feed",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "refresh",
				Aliases: []string{"r"},
				Usage:   "Run a full aggregation cycle instead of serving the snapshot",
			},
			&cli.StringFlag{
				Name:    "category",
				Aliases: []string{"c"},
				Usage:   "Only show events of one category (e.g. DomainAdded)",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Aliases: []string{"jq"},
				Usage:   "jq filter expression that must evaluate to true against each event (can be specified multiple times, all must match)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of events to show (0 = all)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   3 * time.Minute,
				Usage:   "How long to wait for the feed",
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			category := c.String("category")
			jqFilters := c.StringSlice("must-jq")
			limit := c.Int("limit")
			jsonOutput := c.Bool("json")

			// Compile jq filters up front so a bad expression fails fast
			compiledJQFilters := make([]*gojq.Code, len(jqFilters))
			for i, filter := range jqFilters {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				compiledJQFilters[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError, // Only errors to stderr
			}))
			cl := client.NewClient(serverURL, nil, logger)

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			var feed *client.Feed
			var err error
			if c.Bool("refresh") {
				feed, err = cl.GetFeed(ctx, true)
			} else {
				feed, err = cl.WaitForFeed(ctx, 2*time.Second)
			}
			if err != nil {
				return fmt.Errorf("failed to fetch feed: %w", err)
			}

			for _, warn := range feed.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s events unavailable: %s\n", warn.Category, warn.Message)
			}

			events := make([]client.Event, 0, len(feed.Events))
			for _, ev := range feed.Events {
				if category != "" && ev.Category != category {
					continue
				}
				ok, err := matchesJQFilters(ev, compiledJQFilters)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				events = append(events, ev)
				if limit > 0 && len(events) >= limit {
					break
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			for _, ev := range events {
				date := ev.DisplayDate
				if ev.TimestampUnknown {
					date = "unknown"
				}
				fmt.Printf("%-8s %-18s %s\n", date, ev.Category, ev.PrimaryText)
			}
			fmt.Printf("\n%d event(s)\n", len(events))
			return nil
		},
	}
}

func getRecipientCommand() *cli.Command {
	return &cli.Command{
		Name:      "recipient",
		Usage:     "Resolve the payout recipient behind a funding pot",
		ArgsUsage: "FUNDING_POT_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("funding pot id is required")
			}
			potID := c.Args().Get(0)

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))
			cl := client.NewClient(c.String("server-url"), nil, logger)

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			recipient, err := cl.GetRecipient(ctx, potID)
			if err != nil {
				return fmt.Errorf("failed to resolve recipient: %w", err)
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{
					"funding_pot_id": potID,
					"recipient":      recipient,
				})
			}
			fmt.Println(recipient)
			return nil
		},
	}
}

// matchesJQFilters reports whether an event passes every compiled jq filter.
// Each filter runs against the event's JSON representation and must yield a
// truthy value.
func matchesJQFilters(ev client.Event, filters []*gojq.Code) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	// Round-trip through JSON so jq sees plain maps and numbers
	raw, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, fmt.Errorf("jq filter error: %w", err)
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy follows jq semantics: false and null are falsy, everything else
// is truthy.
func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}
