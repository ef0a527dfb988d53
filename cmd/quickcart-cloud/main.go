package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/quickcart/internal/auth"
	"github.com/dukerupert/quickcart/internal/cloud"
	"github.com/dukerupert/quickcart/internal/config"
	"github.com/dukerupert/quickcart/internal/database"
	"github.com/dukerupert/quickcart/internal/docstore"
	"github.com/dukerupert/quickcart/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Cloud.LogLevel)

	db, err := openDatabase(cfg.Cloud)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	docs, err := openDocuments(cfg.Cloud, db)
	if err != nil {
		slog.Error("failed to open document store", "backend", cfg.Cloud.DocumentBackend, "error", err)
		os.Exit(1)
	}
	if c, ok := docs.(io.Closer); ok {
		defer c.Close()
	}

	secret := cfg.Cloud.JWTSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			slog.Error("failed to generate jwt secret", "error", err)
			os.Exit(1)
		}
		slog.Warn("no jwt secret configured; sessions will not survive a restart")
	}
	tokens := auth.NewTokenService(secret, cfg.Cloud.AccessTTL, cfg.Cloud.RefreshTTL)

	srv := cloud.New(db, docs, tokens, cloud.Config{AllowedOrigins: cfg.Cloud.AllowedOrigins}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Cloud.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("quickcart cloud starting", "addr", httpServer.Addr,
			"database", string(db.Dialect), "documents", cfg.Cloud.DocumentBackend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func openDatabase(cfg config.Cloud) (*database.DB, error) {
	if cfg.PostgresDSN != "" {
		return database.OpenPostgres(cfg.PostgresDSN)
	}
	return database.Open(cfg.DBPath)
}

func openDocuments(cfg config.Cloud, db *database.DB) (docstore.Store, error) {
	switch cfg.DocumentBackend {
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return docstore.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case config.BackendS3:
		return docstore.NewS3Store(docstore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
	default:
		return docstore.NewSQLStore(db), nil
	}
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
