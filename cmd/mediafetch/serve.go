package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"mediafetch/internal/config"
	"mediafetch/internal/httpapi"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP service",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port; overrides server.port and PORT",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if p := cmd.Int("port"); p > 0 {
				cfg.Server.Port = int(p)
			}
			logger, closeLog, err := setupLogging(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}

	if !c.engine.Available() {
		logger.Warn().Str("binary", cfg.Engine.Binary).Msg("yt-dlp not found in PATH, downloads will fail")
	} else if v, err := c.engine.Version(ctx); err == nil {
		logger.Info().Str("version", v).Msg("yt-dlp found")
	}
	if !c.transcoder.Available() {
		logger.Warn().Str("binary", cfg.Transcoder.Binary).Msg("ffmpeg not found in PATH, mp3 downloads will fail")
	}
	if _, ok := c.cookies.Resolve(); !ok {
		logger.Info().Msg("no cookie jar configured, starting anonymous")
	}

	// Leftovers from a previous run are orphans by definition.
	if n, err := c.workspace.Sweep(0); err != nil {
		logger.Warn().Err(err).Msg("startup sweep failed")
	} else if n > 0 {
		logger.Info().Int("removed", n).Msg("cleared stale workspace")
	}

	srv := httpapi.New(httpapi.Config{
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		UploadMaxBytes: cfg.Server.UploadMaxBytes,
		FrontendDir:    cfg.Frontend.Dir,
	}, httpapi.Dependencies{
		Jobs:       c.orchestrator,
		Cookies:    c.cookies,
		Engine:     c.engine,
		Transcoder: c.transcoder,
	}, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.Server.Addr())
	})
	g.Go(func() error {
		return c.sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if _, serr := c.sweeper.Shutdown(); serr != nil {
		logger.Error().Err(serr).Msg("final sweep failed")
	}
	return err
}
