package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"crewcal/internal/config"
	"crewcal/internal/feed"
	"crewcal/internal/flatten"
	"crewcal/internal/ics"
	appLog "crewcal/internal/log"
	"crewcal/internal/notion"
	"crewcal/internal/regen"
	"crewcal/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath string
	listen     string
	outDir     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("crewcal starting", "version", version)

	// CLI flags override config file values if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.outDir != "" {
		conf.Regen.OutputDir = flags.outDir
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"log_level", conf.LogLevel,
		"notion_base_url", conf.Notion.BaseURL,
		"notion_version", conf.Notion.Version,
		"notion_token_set", conf.Notion.Token != "",
		"database_id", conf.Notion.DatabaseID,
		"requests_per_second", conf.Notion.RequestsPerSecond,
		"regen_cron", conf.Regen.Cron,
		"out", conf.Regen.OutputDir,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := notion.New(notion.Options{
		BaseURL:           conf.Notion.BaseURL,
		Token:             conf.Notion.Token,
		Version:           conf.Notion.Version,
		ScheduleProperty:  conf.Notion.ScheduleProperty,
		NameProperty:      conf.Notion.NameProperty,
		RequestsPerSecond: conf.Notion.RequestsPerSecond,
		Timeout:           conf.Notion.Timeout,
	})
	svc := feed.NewService(client,
		flatten.New(flatten.WithUIDDomain(conf.Feed.UIDDomain)),
		ics.NewAssembler(ics.Options{
			ProductID:       conf.Feed.ProductID,
			RefreshInterval: conf.Feed.RefreshInterval,
		}),
	)
	regenerator := regen.New(client, svc, conf.Notion.DatabaseID, conf.Regen)

	if flags.once {
		stats, err := regenerator.Run(ctx)
		if err != nil {
			appLog.Error("regeneration failed", err)
			os.Exit(1)
		}
		if stats.Failed > 0 {
			appLog.Warn("regeneration finished with failures", "failed", stats.Failed)
			os.Exit(2)
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.StartServer(gctx, conf, svc)
	})
	if conf.Regen.Cron != "" {
		g.Go(func() error {
			return regenerator.Schedule(gctx, conf.Regen.Cron)
		})
	}

	if err := g.Wait(); err != nil {
		appLog.Error("crewcal stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("crewcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/crewcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.outDir, "out", "", "Output directory for regenerated feeds (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Regenerate every feed once and exit")

	flag.Parse()

	return cfg
}
