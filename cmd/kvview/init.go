package main

import (
	"log/slog"
	"os"

	"kvview/pkg/config"
)

// initConfig loads the YAML config at path. A missing file yields
// config.Default().
func initConfig(path string) (config.Config, error) {
	return config.Load(path)
}

// initLogger installs the global slog.Logger (JSON or text). Logs go to
// stderr: stdout of serve is read by the supervisor.
func initLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{AddSource: true, Level: cfg.Logger.SlogLevel()}

	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
}
