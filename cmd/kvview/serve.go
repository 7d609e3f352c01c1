package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	kvhttp "kvview/internal/http"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to the YAML config.")
	port := fs.Int("port", -1, "Bind port; 0 picks a free one. Overrides http-server.port.")
	db := fs.String("db", "", "Default database directory. Overrides db.path.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := initConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(&cfg)

	if *port >= 0 {
		cfg.Server.Port = *port
	}
	if *db != "" {
		cfg.DB.Path = *db
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := kvhttp.NewServer(kvhttp.NewOpener(cfg.DB, cfg.Remote), cfg.Server)
	bound, err := server.Start(ctx)
	if err != nil {
		return err
	}

	// read by the supervisor; keep the wording
	fmt.Fprintf(os.Stdout, "Listening on port %d\n", bound)

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		return fmt.Errorf("error stopping server: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
