/*
Package main is the entry point for the game server.

It loads configuration, initializes logging, wires the optional room log (Postgres) and
drawing archive (S3) into the room manager, serves HTTP and websockets, and shuts down
gracefully on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"masskribbl/internal/app/db"
	"masskribbl/internal/app/game"
	"masskribbl/internal/app/storage"
	"masskribbl/internal/configs"
	"masskribbl/internal/handler"
	"masskribbl/internal/pkg/logx"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("room_log", cfg.DatabaseDSN != "").
		Bool("archive", cfg.ArchiveEnabled()).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []game.ManagerOption

	if cfg.DatabaseDSN != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to connect to database")
		}
		defer pool.Close()
		opts = append(opts, game.WithRoomLog(db.NewRoomLog(pool)))
	}

	if cfg.ArchiveEnabled() {
		store, err := storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3Region:          cfg.S3Region,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize storage service")
		}
		opts = append(opts, game.WithArchiver(storage.NewDrawingArchive(store)))
	}

	manager := game.NewManager(opts...)

	router, stopRouter := handler.Router(&handler.AppDeps{
		Manager: manager,
		Config:  cfg,
	})
	defer stopRouter()

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info("Game server starting", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Closes every socket and flushes room logs and archives.
	manager.Shutdown()

	logx.Info("Server gracefully stopped.")
}
