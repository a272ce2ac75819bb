// Package runtimeinit builds the services shared by the resident app and
// the command line tool.
package runtimeinit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"region-ocr/src/config"
	"region-ocr/src/enhance"
	"region-ocr/src/history"
	"region-ocr/src/logutil"
	"region-ocr/src/notify"
	"region-ocr/src/transcribe"
)

type Options struct {
	LoadOptions config.LoadOptions
	// Verbose forces debug logging to stderr.
	Verbose bool
	// Stderr receives console logs when file logging is off. Nil discards
	// them.
	Stderr io.Writer
	// Poster shows notices; nil logs them.
	Poster notify.Poster
	// NoHistory skips opening the history database.
	NoHistory bool
}

// Runtime holds the wired services. Close releases them.
type Runtime struct {
	Config      *config.Config
	Logger      *slog.Logger
	Enhancer    *enhance.Enhancer
	Transcriber *transcribe.Client
	History     *history.Store
	Notifier    *notify.Notifier

	closers []io.Closer
}

func Bootstrap(opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.LogLevel
	stderr := opts.Stderr
	if opts.Verbose {
		level = slog.LevelDebug
		if stderr == nil {
			stderr = os.Stderr
		}
	}
	logger, logCloser := logutil.Setup(logutil.Options{
		EnableFileLogging: cfg.EnableFileLogging,
		Dir:               executableDir(),
		Level:             level,
		Stderr:            stderr,
	})
	rt := &Runtime{Config: cfg, Logger: logger, closers: []io.Closer{logCloser}}

	logger.Debug("configuration loaded",
		"endpoint", cfg.Endpoint,
		"mode", cfg.DefaultMode,
		"api_key", logutil.RedactKey(cfg.APIKey),
		"api_key_path", cfg.APIKeyPath)

	enhanceOpts := []enhance.Option{enhance.WithMaxWidth(cfg.MaxOutputWidth)}
	if cfg.EnhanceProfiles != "" {
		profiles, err := enhance.LoadProfiles(cfg.EnhanceProfiles)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to load enhancement profiles: %w", err)
		}
		enhanceOpts = append(enhanceOpts, enhance.WithProfiles(profiles))
	}
	rt.Enhancer = enhance.New(enhanceOpts...)

	rt.Transcriber = transcribe.New(transcribe.Config{
		Endpoint:       cfg.Endpoint,
		UploadEndpoint: cfg.UploadEndpoint,
		Language:       cfg.Language,
		APIKey:         cfg.APIKey,
		Logger:         logger,
	})
	rt.Notifier = notify.New(opts.Poster, cfg.NotifyInterval, 1, logger)

	if !opts.NoHistory {
		store, err := history.Open(cfg.HistoryDB, cfg.HistoryLimit)
		if err != nil {
			// History is a convenience; runs work without it.
			logger.Warn("history disabled", "path", cfg.HistoryDB, "error", err)
		} else {
			rt.History = store
			rt.closers = append(rt.closers, store)
		}
	}
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
