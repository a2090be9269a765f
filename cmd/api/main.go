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
	"syscall"
	"time"

	"github.com/your-org/faceid/internal/api"
	"github.com/your-org/faceid/internal/api/ws"
	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/recognition"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting faceid API", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("api", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	closeORT, err := vision.InitRuntime(cfg.Vision.ONNXLib)
	if err != nil {
		return err
	}
	defer closeORT()

	extractor, err := vision.NewExtractor(cfg.Vision)
	if err != nil {
		return fmt.Errorf("init extractor: %w", err)
	}
	defer extractor.Close()

	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return err
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	conn, err := queue.Connect(cfg.NATS, "faceid-api")
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.EnsureTopology(ctx); err != nil {
		return err
	}

	cache, err := storage.NewGalleryCache(ctx, cfg.Recognition, conn.JetStream(), cfg.NATS.CacheBucket)
	if err != nil {
		return fmt.Errorf("init gallery cache: %w", err)
	}
	svc := recognition.NewService(db, minioStore, extractor, cache, recognition.OptionsFromConfig(cfg.Recognition))

	hub := ws.NewHub()
	go hub.Run(ctx)

	// Live feed of worker results for websocket clients
	feed, err := queue.NewFeedConsumer(ctx, conn, hub)
	if err != nil {
		slog.Warn("start recognition feed", "error", err)
	} else {
		go func() {
			if err := feed.Run(ctx); err != nil {
				slog.Error("recognition feed stopped", "error", err)
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		APIKeys:       cfg.Server.APIKeys,
		MaxUploadSize: cfg.Recognition.MaxUploadSize,
		Faces:         svc,
		DB:            db,
		MinIO:         minioStore,
		NATS:          conn,
		Hub:           hub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
	return nil
}
