package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "orx",
		Usage: "Multi-channel chat bot with OpenRouter chat, image generation, and web search",
		Commands: []*cli.Command{
			serveHwd.cmd(),
			searchHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
