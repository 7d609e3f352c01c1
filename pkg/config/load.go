package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Load reads a YAML config from path over Default(). A missing file yields
// Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the ranges the validate tags describe.
func (c Config) Validate() error {
	switch strings.ToUpper(c.Logger.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logger.level: unknown level %q", c.Logger.Level)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("http-server.port: %d out of range", c.Server.Port)
	}
	if c.Server.ListLimit < 1 {
		return fmt.Errorf("http-server.list_limit: must be positive")
	}
	if c.Server.MaxBodyBytes < 1 {
		return fmt.Errorf("http-server.max_body_bytes: must be positive")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path: required")
	}
	if c.Display.PageSize < 1 {
		return fmt.Errorf("display.page_size: must be positive")
	}
	if c.Remote.ConnectURL != "" && strings.Count(c.Remote.ConnectURL, "%s") != 1 {
		return fmt.Errorf("remote.connect_url: needs exactly one %%s")
	}
	return nil
}

// SlogLevel maps logger.level onto a slog level.
func (l LoggerConfig) SlogLevel() slog.Level {
	switch strings.ToUpper(l.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AccessToken reads the remote access token from the configured environment
// variable.
func (r RemoteConfig) AccessToken() string {
	if r.AccessTokenEnv == "" {
		return ""
	}
	return os.Getenv(r.AccessTokenEnv)
}
