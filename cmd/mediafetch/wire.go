package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"mediafetch/internal/adapters/downloader"
	"mediafetch/internal/adapters/ffmpeg"
	"mediafetch/internal/adapters/identity"
	"mediafetch/internal/adapters/localstorage"
	"mediafetch/internal/adapters/ytdlp"
	"mediafetch/internal/config"
	"mediafetch/internal/service"
)

// components is everything a command needs, built once from Config.
type components struct {
	workspace    *localstorage.Workspace
	cookies      *localstorage.CookieStore
	engine       *ytdlp.YtDlpDownloader
	transcoder   *ffmpeg.Transcoder
	orchestrator *service.Orchestrator
	sweeper      *service.Sweeper
}

func buildComponents(cfg *config.Config, logger zerolog.Logger) (*components, error) {
	ws, err := localstorage.NewWorkspace(cfg.Workspace.Dir,
		localstorage.WithLogger(logger.With().Str("component", "workspace").Logger()))
	if err != nil {
		return nil, err
	}

	cookies := localstorage.NewCookieStore(cfg.Credentials.UploadPath, cfg.Credentials.OperatorPath, logger)

	engine := ytdlp.NewYtDlpDownloader(ytdlp.Options{
		Binary:        cfg.Engine.Binary,
		Timeout:       cfg.Engine.Timeout,
		ProbeTimeout:  cfg.Engine.ProbeTimeout,
		Retries:       cfg.Engine.Retries,
		ProbeRetries:  cfg.Engine.ProbeRetries,
		SocketTimeout: cfg.Engine.SocketTimeout,
		SleepInterval: cfg.Engine.SleepInterval,
		CABundle:      cfg.TLS.CABundle,
		CookieDir:     cfg.Workspace.Dir,
	}, logger)

	transcoder := ffmpeg.NewTranscoder(cfg.Transcoder.Binary, cfg.Transcoder.Timeout, logger)

	fetcher, err := downloader.NewHTTPDownloader(downloader.Options{CABundle: cfg.TLS.CABundle}, logger)
	if err != nil {
		return nil, fmt.Errorf("passthrough client: %w", err)
	}

	var rotatorOpts []identity.Option
	if !cfg.Pacing.Enabled {
		rotatorOpts = append(rotatorOpts, identity.WithBuckets(nil))
	}

	sweeper := service.NewSweeper(ws, cfg.Workspace.SweepInterval, cfg.Workspace.OrphanTTL, logger)

	orch := service.NewOrchestrator(service.Dependencies{
		Extractor:   engine,
		Fetcher:     fetcher,
		Transcoder:  transcoder,
		Workspace:   ws,
		Credentials: cookies,
		Identity:    identity.NewRotator(rotatorOpts...),
	},
		service.NewPolicy(cfg.Transcoder.VideoContainer, cfg.Transcoder.AudioBitrate),
		logger,
		service.WithMinArtifactBytes(cfg.Workspace.MinArtifactBytes),
		service.WithAfterJob(sweeper.Trigger),
	)

	return &components{
		workspace:    ws,
		cookies:      cookies,
		engine:       engine,
		transcoder:   transcoder,
		orchestrator: orch,
		sweeper:      sweeper,
	}, nil
}
