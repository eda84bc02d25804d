// Command m3ufilter downloads an M3U playlist and its EPG, filters both and
// publishes the results to S3-compatible storage. With -serve it keeps
// running, refreshing on an interval and serving the artifacts over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/ozyab09/iptv/internal/config"
	"github.com/ozyab09/iptv/internal/fetch"
	"github.com/ozyab09/iptv/internal/jobs"
	xlog "github.com/ozyab09/iptv/internal/log"
	"github.com/ozyab09/iptv/internal/server"
	"github.com/ozyab09/iptv/internal/storage"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	serve := flag.Bool("serve", false, "keep running: serve artifacts over HTTP and refresh on an interval")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	xlog.Configure(xlog.Config{Level: "info", Service: "m3ufilter", Version: version})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = xlog.ContextWithJobID(ctx, uuid.NewString())

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error().Err(err).Str("config_path", *configPath).Msg("failed to load configuration")
		return 1
	}

	// Rebuild the logger with the loaded configuration.
	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: version})

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			logger.Error().Err(err).Msg("configuration error")
		}
		return 1
	}

	logger.Info().
		Str("playlist_url", xlog.MaskURL(cfg.PlaylistURL)).
		Str("epg_url", xlog.MaskURL(cfg.EPGURL)).
		Bool("dry_run", cfg.DryRun).
		Msg("configuration loaded")

	fetcher := fetch.New()

	var uploader jobs.Uploader
	if !cfg.DryRun {
		up, err := storage.New(ctx, cfg.Endpoint, cfg.Region)
		if err != nil {
			logger.Error().Err(err).Msg("storage setup failed")
			return 1
		}
		uploader = up
	}

	if *serve {
		srv := server.New(cfg, fetcher, uploader)
		if err := srv.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("server failed")
			return 1
		}
		return 0
	}

	status, err := jobs.Refresh(ctx, cfg, fetcher, uploader)
	if err != nil {
		logger.Error().Err(err).Msg("process failed")
		return 1
	}

	logger.Info().
		Int("channels", status.Channels).
		Bool("epg_processed", status.Programmes).
		Msg("process completed successfully")
	return 0
}
