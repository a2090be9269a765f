package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceid/internal/config"
)

// Subjects captured by the processing stream. Routing keys are subjects
// under these roots.
var streamSubjects = []string{"image.>", "person.>", "face.>", "data.>"}

// Conn is a NATS connection with its JetStream context and the name of the
// stream that carries processing events.
type Conn struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
}

// Connect dials NATS and keeps reconnecting forever on failure.
func Connect(cfg config.NATSConfig, clientName string) (*Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(clientName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Conn{nc: nc, js: js, stream: cfg.Stream}, nil
}

func (c *Conn) JetStream() jetstream.JetStream {
	return c.js
}

// EnsureTopology creates or updates the processing stream. Retries up to 30
// times (1s apart) to ride out NATS startup.
func (c *Conn) EnsureTopology(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        c.stream,
		Subjects:    streamSubjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Duplicates:  2 * time.Minute,
		Description: "Face image processing events",
	}

	const maxAttempts = 30
	for attempt := 1; ; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := c.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name, "subjects", cfg.Subjects)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (c *Conn) Ping() error {
	if !c.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close drains pending publishes and subscriptions, then closes.
func (c *Conn) Close() {
	if err := c.nc.Drain(); err != nil {
		slog.Warn("drain nats connection", "error", err)
		c.nc.Close()
	}
}
