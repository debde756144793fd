package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/transcendia/platform/internal/config"
	"github.com/transcendia/platform/internal/events"
	_ "github.com/transcendia/platform/internal/grpcclient" // registers the "grpc" engine
	"github.com/transcendia/platform/internal/models"
	"github.com/transcendia/platform/internal/ocr"
	_ "github.com/transcendia/platform/internal/ocr/tesseract" // registers "tesseract" with -tags tesseract
	"github.com/transcendia/platform/internal/orchestrator"
	"github.com/transcendia/platform/internal/orchestrator/history"
	"github.com/transcendia/platform/internal/screen"
	"github.com/transcendia/platform/internal/server"
	"github.com/transcendia/platform/internal/translate"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Provision models, serve the overlay API and run the translation loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("transcendia starting", "version", version, "config", cfg.String())

	bus := events.NewBus()
	capturer := screen.New()
	defer capturer.Close()

	dir := modelDir(cfg)
	prov := models.New(dir, models.DefaultModels, bus, models.WithTimeouts(cfg.Models.ConnectTimeout, cfg.Models.Timeout))

	rec, err := ocr.Open(cfg.OCR.Backend, ocr.Options{
		Addr:      cfg.OCR.InferenceAddr,
		ModelDir:  dir,
		Languages: cfg.OCR.Languages,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rec.Close() }()

	tr, err := translate.New(
		translate.WithEndpoint(cfg.Translate.Endpoint),
		translate.WithTimeouts(cfg.Translate.ConnectTimeout, cfg.Translate.Timeout),
	)
	if err != nil {
		return err
	}

	rt := orchestrator.New(orchestrator.Deps{
		Capturer:   capturer,
		Recognizer: rec,
		Translator: tr,
		Bus:        bus,
	}, orchestrator.Options{
		Interval:          cfg.Runtime.Interval(),
		Language:          cfg.Runtime.Language,
		SkipSimilarFrames: cfg.Runtime.SkipSimilarFrames,
	})
	defer rt.Close()

	hist := history.NewStore(history.DefaultMaxEntries)
	go hist.Follow(ctx, bus)

	var modelsReady atomic.Bool
	srv := server.New(ctx, server.Deps{
		Runtime:   rt,
		Downloads: prov,
		Monitors:  capturer,
		Bus:       bus,
		History:   hist,
		Config:    cfg.Runtime,
		Ready:     modelsReady.Load,
	})
	httpServer := &http.Server{
		Addr:              cfg.Platform.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("overlay api listening", "http", cfg.Platform.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		slog.Info("shutdown complete")
	}()

	ready, err := provision(ctx, prov)
	if err != nil {
		return err
	}
	if !ready {
		return nil
	}
	modelsReady.Store(true)

	if r := cfg.Runtime.Region; r != nil {
		rt.Start(ctx, orchestrator.Session{Monitor: cfg.Runtime.Monitor, Region: *r, Language: cfg.Runtime.Language})
	} else {
		slog.Info("no region configured, waiting for the overlay to start the runtime")
	}

	<-ctx.Done()
	slog.Info("shutting down...")
	return nil
}

// provision makes sure the models exist. ready is false without an error
// when the user declined the download or ctx ended.
func provision(ctx context.Context, prov *models.Provisioner) (ready bool, err error) {
	present, err := prov.EnsurePresent(ctx)
	if err != nil || present {
		return present, err
	}
	slog.Info("downloading ocr models", "dir", prov.Dir(), "files", len(prov.Jobs()))

	outcome, err := prov.Wait(ctx)
	switch {
	case ctx.Err() != nil:
		return false, nil
	case outcome == models.Declined:
		slog.Info("user declined the model download, exiting")
		return false, nil
	case outcome == models.Failed:
		slog.Error("model download failed", "error", err)
		return false, err
	}
	return true, nil
}
