package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/htmlgxn/signal-bot-orx/internal/search"
)

var searchHwd = &SearchRunner{}

// SearchRunner exposes the search providers on the command line so a
// deployment can be probed without going through a chat channel.
type SearchRunner struct{}

func (r *SearchRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Inspect and exercise the search providers",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List registered search providers",
				Action: r.list,
			},
			{
				Name:      "run",
				Usage:     "Run one provider and print its results",
				ArgsUsage: "<provider> <query>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "proxy",
						Usage: "Proxy URL for provider requests",
					},
					&cli.StringFlag{
						Name:  "api-key",
						Usage: "API key for keyed providers (brave, weather)",
					},
					&cli.StringFlag{
						Name:  "safesearch",
						Usage: "Safe search level: on, moderate, off",
						Value: "moderate",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum results to print",
						Value: 5,
					},
				},
				Action: r.run,
			},
		},
	}
}

func (r *SearchRunner) list(_ context.Context, _ *cli.Command) error {
	for _, name := range search.Available() {
		fmt.Println(name)
	}
	return nil
}

func (r *SearchRunner) run(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("usage: orx search run <provider> <query>")
	}
	name := strings.ToLower(strings.TrimSpace(args[0]))
	query := strings.Join(args[1:], " ")

	provider, err := search.New(name, search.Options{
		Proxy:      cmd.String("proxy"),
		APIKey:     cmd.String("api-key"),
		SafeSearch: cmd.String("safesearch"),
	})
	if err != nil {
		return err
	}

	results, err := provider.Search(ctx, query, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no results")
	}

	for i, res := range results {
		fmt.Printf("%d. %s\n", i+1, res.Title)
		if res.URL != "" {
			fmt.Printf("   %s\n", res.URL)
		}
		if res.Snippet != "" {
			fmt.Printf("   %s\n", res.Snippet)
		}
		if res.Date != "" {
			fmt.Printf("   (%s, %s)\n", res.Source, res.Date)
		} else if res.Source != "" {
			fmt.Printf("   (%s)\n", res.Source)
		}
	}
	return nil
}
