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
	"github.com/MusicSocial/streaming/internal/gateway"
	xlog "github.com/MusicSocial/streaming/internal/log"
	"github.com/MusicSocial/streaming/internal/signing"
	"github.com/MusicSocial/streaming/internal/storage"
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

	// Safe defaults until config is loaded.
	xlog.Configure(xlog.Config{
		Level:   "info",
		Service: "streaming-gateway",
		Version: version,
	})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.LoadGateway()
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

	store, err := storage.NewMinioReader(cfg.Minio)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "storage.init_failed").
			Str("endpoint", cfg.Minio.Endpoint).
			Msg("failed to create object store client")
	}

	signer := signing.New(cfg.SigningSecret)
	srv := gateway.New(cfg, signer, store)
	httpSrv := srv.HTTPServer()

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("addr", cfg.ListenAddr).
		Str("bucket", cfg.Minio.Bucket).
		Dur("playlist_ttl", cfg.PlaylistTTL).
		Dur("segment_ttl", cfg.SegmentTTL).
		Msg("starting streaming gateway")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("event", "shutdown.error").Msg("gateway exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "shutdown").Msg("gateway stopped")
}
