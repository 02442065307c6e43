package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/djwesty/rust-irc/internal/chat"
	"github.com/djwesty/rust-irc/internal/client"
	"github.com/djwesty/rust-irc/internal/config"
	"github.com/djwesty/rust-irc/internal/httpapi"
	"github.com/djwesty/rust-irc/internal/registry"
)

// setupLogging installs the default slog handler. Debug logging is
// auto-enabled for dev builds; override with the flag or IRC_DEBUG.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug || strings.Contains(Version, "dev") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func runServer(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("server", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "TCP port to listen on")
	maxUsers := fs.Int("max-users", cfg.MaxUsers, "Max registered users (0 = unlimited)")
	apiAddr := fs.String("api", cfg.APIAddr, "Admin HTTP API listen address (empty = disabled)")
	metricsInterval := fs.Duration("metrics", cfg.MetricsInterval, "Stats log interval")
	console := fs.Bool("console", true, "Run the interactive admin console")
	debug := fs.Bool("debug", cfg.Debug, "Enable debug logging")
	fs.Parse(args)

	setupLogging(*debug)
	slog.Info("starting server", "version", Version, "port", *port, "max_users", *maxUsers)

	reg := registry.New(*maxUsers)
	server := chat.NewServer(fmt.Sprintf(":%d", *port), reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			slog.Info("received interrupt, shutting down")
			chat.DisconnectAll(reg)
			cancel()
		case <-gctx.Done():
		}
	}()

	g.Go(func() error {
		return server.Run(gctx)
	})
	if *apiAddr != "" {
		api := httpapi.New(reg)
		g.Go(func() error {
			slog.Info("admin api listening", "addr", *apiAddr)
			return api.Run(gctx, *apiAddr)
		})
	}
	if *metricsInterval > 0 {
		g.Go(func() error {
			chat.RunMetrics(gctx, reg, *metricsInterval)
			return nil
		})
	}

	// The console owns stdin and the shutdown trigger; it is not part of
	// the group so a signal-driven shutdown does not wait on the prompt.
	if *console {
		go chat.RunConsole(reg, cancel)
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("server stopped")
	return 0
}

func runClient(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("client", flag.ExitOnError)
	host := fs.String("host", cfg.Host, "Server host to connect to")
	port := fs.Int("port", cfg.Port, "Server TCP port")
	nick := fs.String("nick", "", "Nickname (prompted for when empty)")
	debug := fs.Bool("debug", cfg.Debug, "Enable debug logging")
	fs.Parse(args)

	setupLogging(*debug)
	return client.Run(*host, *port, *nick)
}
