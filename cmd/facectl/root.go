package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/recognition"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "facectl",
	Short: "Administer the faceid identity store",
	Long: `facectl talks directly to the faceid stores. It lists and deletes persons,
identifies or registers single photos, bulk-enrolls a directory tree and
publishes test events to the broker.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// app holds the connections one command needs.
type app struct {
	cfg    *config.Config
	svc    *recognition.Service
	conn   *queue.Conn
	closer []func()
}

func (a *app) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
}

// openApp connects the stores and builds the resolution service. The face
// extractor is loaded only when withVision is set.
func openApp(ctx context.Context, withVision bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	var extractor recognition.Extractor
	if withVision {
		closeORT, err := vision.InitRuntime(cfg.Vision.ONNXLib)
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, closeORT)

		ex, err := vision.NewExtractor(cfg.Vision)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init extractor: %w", err)
		}
		a.closer = append(a.closer, ex.Close)
		extractor = ex
	}

	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closer = append(a.closer, db.Close)
	if err := db.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, err
	}

	blobs, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.conn, err = queue.Connect(cfg.NATS, "facectl")
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closer = append(a.closer, a.conn.Close)

	cache, err := storage.NewGalleryCache(ctx, cfg.Recognition, a.conn.JetStream(), cfg.NATS.CacheBucket)
	if err != nil {
		// fall back to uncached gallery reads
		slog.Warn("gallery cache unavailable", "error", err)
		cache = nil
	}

	a.svc = recognition.NewService(db, blobs, extractor, cache, recognition.OptionsFromConfig(cfg.Recognition))
	return a, nil
}
