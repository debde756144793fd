package main

import (
	"log/slog"
	"os"

	"github.com/transcendia/platform/internal/config"
	"github.com/transcendia/platform/internal/models"
)

// load reads the configuration and installs the default logger.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Platform.LogLevel = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Platform.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, nil
}

func modelDir(cfg *config.Config) string {
	if cfg.Models.Dir != "" {
		return cfg.Models.Dir
	}
	return models.DefaultDir()
}
