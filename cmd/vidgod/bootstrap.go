package main

import (
	"context"
	"fmt"

	"vidgo/internal/artifactstore"
	"vidgo/internal/config"
	"vidgo/internal/daemon"
	"vidgo/internal/export"
	"vidgo/internal/logging"
	"vidgo/internal/queue"
	"vidgo/internal/stage"
	"vidgo/internal/transcode"
	"vidgo/internal/transcribe"
	"vidgo/internal/workflow"
)

// run wires the full pipeline and blocks until the context is canceled.
func run(ctx context.Context, configPath string) error {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}

	artifacts, err := artifactstore.New(cfg.Paths.ArtifactRoot)
	if err != nil {
		store.Close()
		return err
	}

	transcoder := transcode.New(cfg, logger)
	manager := workflow.NewManager(cfg, store, logger)
	pipeline := stage.NewPipeline(stage.PipelineDeps{
		Config:     cfg,
		Store:      store,
		Artifacts:  artifacts,
		Fetchers:   stage.DefaultFetchers(cfg, transcoder, logger),
		Transcoder: transcoder,
		Engines: transcribe.NewSelector(logger,
			transcribe.NewWhisperCPP(cfg, logger),
			transcribe.NewOpenAIWhisper(logger),
			transcribe.NewElevenLabs(logger),
			transcribe.NewRemoteVidgo(logger)),
		Renderer: export.New(cfg, logger),
		Logger:   logger,
	})
	pipeline.Register(manager)

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		store.Close()
		return err
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}
	logger.Info("vidgod running", logging.String("artifact_root", cfg.Paths.ArtifactRoot))
	<-ctx.Done()
	logger.Info("vidgod shutting down")
	return nil
}
