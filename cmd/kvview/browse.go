package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kvview/internal/browser"
	"kvview/internal/host"
	"kvview/internal/supervisor"
	"kvview/pkg/locator"
	"kvview/pkg/protocol"
	"kvview/pkg/rpc"
)

func runBrowse(args []string) error {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to the YAML config.")
	serverBin := fs.String("server", "", "Server binary to run (default: this executable).")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := initConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(&cfg)

	bin := *serverBin
	if bin == "" {
		if bin, err = os.Executable(); err != nil {
			return fmt.Errorf("locate server binary: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	proc, err := supervisor.Start(ctx, supervisor.Config{
		Command:        bin,
		Args:           []string{"serve", "-config", *configPath, "-port", "0"},
		StartupTimeout: cfg.Supervisor.StartupTimeout,
	})
	if err != nil {
		return err
	}
	defer proc.Stop()

	client := rpc.NewClient(proc.URL(), rpc.WithTimeout(cfg.Protocol.RequestTimeout))
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("server at %s is not healthy: %w", proc.URL(), err)
	}

	term := host.NewTerminal(os.Stdin, os.Stdout)

	var calls *protocol.Correlator
	bridge := host.NewBridge(client, term, term, func(frame []byte) { calls.DeliverFrame(frame) }, host.Options{
		Display: protocol.Display{
			PreviewValue: cfg.Display.PreviewValue,
			PageSize:     cfg.Display.PageSize,
		},
		Resolver: locator.NewResolver(cfg.Remote.ConnectURL),
	})
	calls = protocol.NewCorrelator(cfg.Protocol.RequestTimeout, func(ctx context.Context, req protocol.Request) error {
		frame, err := protocol.EncodeRequest(req)
		if err != nil {
			return err
		}
		return bridge.Send(ctx, frame)
	})
	bridge.Start(ctx)
	defer bridge.Stop()
	defer calls.Close()

	session := browser.NewSession(calls, browser.WithPreviewWidth(cfg.Display.PreviewWidth))
	if _, err := session.LoadConfig(ctx); err != nil {
		return err
	}

	// the terminal read does not observe ctx; an interrupt ends the session
	// from here
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			calls.Close()
			_ = proc.Stop()
			os.Exit(130)
		case <-finished:
		}
	}()

	return newREPL(session, term).run(ctx)
}
