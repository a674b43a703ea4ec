package main

//
// main.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"gitlab.com/kabes/go-cast/internal/cmd"
	"gitlab.com/kabes/go-cast/internal/config"

	_ "github.com/mattn/go-sqlite3"
)

var (
	Version   = "dev"
	Revision  = ""
	BuildDate = ""
	BuildUser = ""
	Branch    = ""
)

func buildVersionString() string {
	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			var dirty string

			for _, kv := range info.Settings {
				switch kv.Key {
				case "vcs.revision":
					Revision = kv.Value
				case "vcs.time":
					BuildDate = kv.Value
				case "vcs.modified":
					dirty = kv.Value
				}
			}

			return fmt.Sprintf("Rev: %s at %s %s", Revision, BuildDate, dirty)
		}
	} else {
		return fmt.Sprintf("Version: %s, Rev: %s, Build: %s by %s from %s",
			Version, Revision, BuildDate, BuildUser, Branch)
	}

	return Version
}

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "print-version",
		Aliases: []string{"V"},
		Usage:   "Print version.",
	}

	app := &cli.Command{
		Name:    "go-cast",
		Version: buildVersionString(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "database", Value: "go-cast.sqlite", Usage: "Database file"},
			&cli.StringFlag{Name: "media-dir", Value: "media", Usage: "Downloaded episodes directory"},
			&cli.StringFlag{Name: "log.level", Value: "info", Usage: "Log level (debug, info, warn, error)"},
			&cli.StringFlag{
				Name: "log.format", Value: "logfmt",
				Usage: "Log format (logfmt, json, syslog, journald)",
			},
			&cli.StringFlag{Name: "debug", Value: "", Usage: "Debug flags (comma separated)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start playback daemon",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Value: "127.0.0.1:3480", Usage: "listen address"},
					&cli.BoolFlag{Name: "metrics", Value: false, Usage: "enable /metrics endpoint"},
					&cli.DurationFlag{
						Name: "refresh-interval", Value: 0,
						Usage: "refresh all feeds periodically; 0 disables",
					},
				},
				Action: serveAction,
			},
			{
				Name:      "subscribe",
				Usage:     "subscribe to podcast feed",
				ArgsUsage: "<feed url>",
				Action:    subscribeAction,
			},
			{
				Name:      "unsubscribe",
				Usage:     "unsubscribe from podcast feed",
				ArgsUsage: "<feed url>",
				Action:    unsubscribeAction,
			},
			{
				Name:   "refresh",
				Usage:  "refresh all subscribed feeds",
				Action: refreshAction,
			},
			{
				Name:      "download",
				Usage:     "download one episode",
				ArgsUsage: "<episode guid>",
				Action:    downloadAction,
			},
			{
				Name:      "list",
				Usage:     "list objects (" + cmd.ListSupportedObjects + ")",
				ArgsUsage: "<object>",
				Action:    listAction,
			},
			{
				Name:   "status",
				Usage:  "show library and policy summary",
				Action: statusAction,
			},
			{
				Name:  "cleanup",
				Usage: "enforce download storage limits",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Value: false, Usage: "delete all non-queued downloads"},
				},
				Action: cleanupAction,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: migrateAction,
			},
			{
				Name:   "maintenance",
				Usage:  "run database maintenance",
				Action: maintenanceAction,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %s\n", err.Error())
		os.Exit(1)
	}
}

func debugFlags(c *cli.Command) config.DebugFlags {
	if flags := c.String("debug"); flags != "" {
		return config.NewDebugFLags(flags)
	}

	return nil
}

// prepare the root context: logger configured from flags and stored in ctx.
func prepare(ctx context.Context, c *cli.Command) context.Context {
	initializeLogger(c.String("log.level"), c.String("log.format"))

	return log.Logger.WithContext(ctx)
}

func serveAction(ctx context.Context, c *cli.Command) error {
	ctx = prepare(ctx, c)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := cmd.Serve{
		Database:        c.String("database"),
		MediaDir:        c.String("media-dir"),
		Listen:          c.String("address"),
		EnableMetrics:   c.Bool("metrics"),
		RefreshInterval: c.Duration("refresh-interval"),
		DebugFlags:      debugFlags(c),
	}

	return s.Start(ctx)
}

func subscribeAction(ctx context.Context, c *cli.Command) error {
	ctx = prepare(ctx, c)
	s := cmd.Subscribe{
		Database: c.String("database"),
		MediaDir: c.String("media-dir"),
		FeedURL:  c.Args().First(),
	}

	return s.Start(ctx)
}

func unsubscribeAction(ctx context.Context, c *cli.Command) error {
	ctx = prepare(ctx, c)
	s := cmd.Unsubscribe{
		Database: c.String("database"),
		MediaDir: c.String("media-dir"),
		FeedURL:  c.Args().First(),
	}

	return s.Start(ctx)
}

func refreshAction(ctx context.Context, c *cli.Command) error {
	ctx = prepare(ctx, c)
	s := cmd.Refresh{
		Database: c.String("database"),
		MediaDir: c.String("media-dir"),
	}

	return s.Start(ctx)
}

func downloadAction(ctx context.Context, c *cli.Command) error {
	ctx = prepare(ctx, c)
	s := cmd.Download{
		Database: c.String("database"),
		MediaDir: c.String("media-dir"),
		GUID:     c.Args().First(),
	}

	return s.Start(ctx)
}

func listAction(ctx context.Context, c *cli.Command) error {
	ctx = prepare(ctx, c)
	s := cmd.List{
		Database: c.String("database"),
		MediaDir: c.String("media-dir"),
		Object:   c.Args().First(),
	}

	return s.Start(ctx)
}

func statusAction(ctx context.Context, c *cli.Command) error {
	ctx = prepare(ctx, c)
	s := cmd.Status{
		Database: c.String("database"),
		MediaDir: c.String("media-dir"),
	}

	return s.Start(ctx)
}

func cleanupAction(ctx context.Context, c *cli.Command) error {
	ctx = prepare(ctx, c)
	s := cmd.Cleanup{
		Database: c.String("database"),
		MediaDir: c.String("media-dir"),
		All:      c.Bool("all"),
	}

	return s.Start(ctx)
}

func migrateAction(ctx context.Context, c *cli.Command) error {
	ctx = prepare(ctx, c)
	s := cmd.Migrate{Database: c.String("database")}

	return s.Start(ctx)
}

func maintenanceAction(ctx context.Context, c *cli.Command) error {
	ctx = prepare(ctx, c)
	s := cmd.Maintenance{Database: c.String("database")}

	return s.Start(ctx)
}
