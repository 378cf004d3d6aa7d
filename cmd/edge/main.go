// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MusicSocial/streaming/internal/config"
	"github.com/MusicSocial/streaming/internal/edge"
	xlog "github.com/MusicSocial/streaming/internal/log"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xlog.Configure(xlog.Config{
		Level:   "info",
		Service: "streaming-edge",
		Version: version,
	})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.LoadEdge()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	if cfg.LogLevel != "" {
		xlog.SetLevel(cfg.LogLevel)
	}

	srv := edge.New(cfg)
	httpSrv := srv.HTTPServer()

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("addr", cfg.ListenAddr).
		Str("origin", cfg.OriginBaseURL).
		Int("cache_max_entries", cfg.CacheMaxSize).
		Msg("starting CDN edge")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		srv.LogStatsPeriodically(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("event", "shutdown.error").Msg("edge exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "shutdown").Msg("edge stopped")
}
