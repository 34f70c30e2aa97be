package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/dgallion1/docstream/internal/config"
)

type appKey struct{}

// app is what every subcommand shares, prepared once flags are parsed.
type app struct {
	cfg config.Config
	log *slog.Logger
}

func appFrom(ctx context.Context) *app {
	if a, ok := ctx.Value(appKey{}).(*app); ok {
		return a
	}
	return &app{cfg: config.Defaults(), log: slog.Default()}
}

func before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.LoadFrom(cmd.String("config"))
	if err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if v := cmd.String("upstream"); v != "" {
		cfg.UpstreamURL = v
	}
	if v := cmd.String("api-key"); v != "" {
		cfg.UpstreamAPIKey = v
	}

	level := slog.LevelInfo
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return context.WithValue(ctx, appKey{}, &app{cfg: cfg, log: log}), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:            "docstream",
		Usage:           "reads, requests and feeds streamed entries",
		HideHelpCommand: true,
		Before:          before,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)", Sources: cli.EnvVars("DOCSTREAM_CONFIG")},
			&cli.StringFlag{Name: "upstream", Aliases: []string{"u"}, Usage: "entry server base `URL`"},
			&cli.StringFlag{Name: "api-key", Usage: "entry server API `KEY`"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log stream events"},
		},
		Commands: []*cli.Command{
			{
				Name:      "read",
				Usage:     "Assembles every page of an entry and writes it out",
				ArgsUsage: "ENTRY_ID [DESTINATION]",
				Action:    runRead,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "to", Value: "html", Usage: "output `TYPE` (html, docx, json)"},
					&cli.BoolFlag{Name: "facts", Usage: "inject facts from --facts-file between sections"},
					&cli.StringFlag{Name: "facts-file", Usage: "facts `FILE` (md, html, txt, csv, pdf, docx)"},
				},
			},
			{
				Name:      "new",
				Usage:     "Requests a new entry for a topic",
				ArgsUsage: "TOPIC",
				Action:    runNew,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "proficiency", Aliases: []string{"p"}, Value: 2, Usage: "reader `LEVEL` (1 beginner, 2 intermediate, 3 advanced)"},
				},
			},
			{
				Name:      "facts",
				Usage:     "Loads a facts file into the shared Redis supply",
				ArgsUsage: "FILE",
				Action:    runFacts,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "redis", Usage: "redis `URL`", Sources: cli.EnvVars("REDIS_URL")},
					&cli.StringFlag{Name: "key", Usage: "list `KEY` holding the facts"},
				},
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "docstream: %v\n", err)
		os.Exit(1)
	}
}
