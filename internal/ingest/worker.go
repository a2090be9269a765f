package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/recognition"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
)

const depthInterval = 10 * time.Second

type runner interface {
	Run(ctx context.Context) error
	Pending(ctx context.Context) (uint64, error)
}

// Worker owns the recognition worker process: its connections, the
// resolution service and the consume loop.
type Worker struct {
	cfg *config.Config

	store     *storage.PostgresStore
	blobs     *storage.MinIOStore
	conn      *queue.Conn
	extractor *vision.Extractor
	closeORT  func()
	consumer  runner
}

func NewWorker(cfg *config.Config) *Worker {
	return &Worker{cfg: cfg}
}

// Setup connects every dependency and declares schema, bucket, stream and
// consumer. Each step is idempotent, so restarts are safe.
func (w *Worker) Setup(ctx context.Context) error {
	var err error

	w.closeORT, err = vision.InitRuntime(w.cfg.Vision.ONNXLib)
	if err != nil {
		return err
	}
	w.extractor, err = vision.NewExtractor(w.cfg.Vision)
	if err != nil {
		return fmt.Errorf("init extractor: %w", err)
	}

	w.store, err = storage.NewPostgresStore(ctx, w.cfg.Database)
	if err != nil {
		return err
	}
	if err := w.store.EnsureSchema(ctx); err != nil {
		return err
	}

	w.blobs, err = storage.NewMinIOStore(w.cfg.MinIO)
	if err != nil {
		return err
	}
	if err := w.blobs.EnsureBucket(ctx); err != nil {
		return err
	}

	w.conn, err = queue.Connect(w.cfg.NATS, "faceid-worker")
	if err != nil {
		return err
	}
	if err := w.conn.EnsureTopology(ctx); err != nil {
		return err
	}

	cache, err := storage.NewGalleryCache(ctx, w.cfg.Recognition, w.conn.JetStream(), w.cfg.NATS.CacheBucket)
	if err != nil {
		return fmt.Errorf("init gallery cache: %w", err)
	}

	svc := recognition.NewService(w.store, w.blobs, w.extractor, cache, recognition.OptionsFromConfig(w.cfg.Recognition))
	pub := queue.NewPublisher(w.conn)

	w.consumer, err = queue.NewConsumer(ctx, w.conn, w.cfg.NATS,
		NewImageReceivedHandler(svc, pub),
		NewPersonDeleteHandler(svc),
	)
	if err != nil {
		return err
	}

	slog.Info("worker ready",
		"stream", w.cfg.NATS.Stream,
		"queue", w.cfg.NATS.Queue,
		"prefetch", w.cfg.NATS.Prefetch,
		"cache", w.cfg.Recognition.CacheBackend,
	)
	return nil
}

// Run starts the consume loop and blocks until ctx is cancelled and the
// loop has returned.
func (w *Worker) Run(ctx context.Context) error {
	if w.consumer == nil {
		return fmt.Errorf("worker not set up")
	}

	done := make(chan error, 1)
	go func() { done <- w.consumer.Run(ctx) }()
	go w.reportDepth(ctx, depthInterval)

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		slog.Info("shutdown requested, waiting for in-flight message")
		return <-done
	}
}

// reportDepth periodically publishes the worker queue backlog.
func (w *Worker) reportDepth(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.consumer.Pending(ctx)
			if err != nil {
				slog.Debug("queue depth", "error", err)
				continue
			}
			observability.QueueDepth.Set(float64(n))
		}
	}
}

// Cleanup releases everything Setup acquired. It tolerates a partial Setup.
func (w *Worker) Cleanup() {
	if w.conn != nil {
		w.conn.Close()
	}
	if w.store != nil {
		w.store.Close()
	}
	if w.extractor != nil {
		w.extractor.Close()
	}
	if w.closeORT != nil {
		w.closeORT()
	}
	slog.Info("worker stopped")
}
