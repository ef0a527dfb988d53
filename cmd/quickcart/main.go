package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dukerupert/quickcart/internal/app"
	"github.com/dukerupert/quickcart/internal/config"
	"github.com/dukerupert/quickcart/internal/localstore"
	"github.com/dukerupert/quickcart/internal/logging"
	"github.com/dukerupert/quickcart/internal/server"
	"github.com/dukerupert/quickcart/internal/tui"
)

var version = "0.1.0"

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		runCommand(args, serve)
	case "tui":
		runCommand(args, runTUI)
	case "version":
		fmt.Printf("quickcart v%s\n", version)
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printHelp()
		os.Exit(2)
	}
}

func printHelp() {
	help := `quickcart - shopping lists, synced to the cloud or kept on this device

Usage:
  quickcart [serve] [-config path]   Serve the local view API and change feed
  quickcart tui [-config path]       Start the terminal UI
  quickcart version                  Show version
  quickcart help                     Show this help

Configuration is read from ~/.config/quickcart/config.toml when present,
then overridden by QUICKCART_* environment variables.
`
	fmt.Print(help)
}

func runCommand(args []string, run func(config.Config) error) {
	fs := flag.NewFlagSet("quickcart", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		if errors.Is(err, localstore.ErrLocked) {
			fmt.Fprintln(os.Stderr, "Error: another quickcart instance is using", cfg.Client.DataDir)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func serve(cfg config.Config) error {
	logger := logging.Setup(cfg.Client.LogLevel)

	a, err := app.New(cfg.Client, logger)
	if err != nil {
		return err
	}
	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	a.Start(startCtx)
	startCancel()

	srv := server.New(a.Store, a.Sync, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Client.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("quickcart starting", "addr", httpServer.Addr, "cloud", cfg.Client.CloudURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		slog.Error("server error", "error", serveErr)
	}

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	srv.Close()
	a.Close(ctx)
	return serveErr
}

func runTUI(cfg config.Config) error {
	if err := os.MkdirAll(cfg.Client.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.Client.DataDir, "quickcart.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := logging.SetupWriter(logFile, cfg.Client.LogLevel)

	a, err := app.New(cfg.Client, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(ctx)
	}()

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	a.Start(startCtx)
	startCancel()

	m := tui.New(a.Store, a.Sync)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
