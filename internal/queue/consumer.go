package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

// Handler processes the envelopes published under one routing key.
type Handler interface {
	RoutingKey() string
	Handle(ctx context.Context, env models.Envelope) error
}

// Delivery is the part of a JetStream message the dispatcher needs.
type Delivery interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

const (
	fetchWait  = 2 * time.Second
	fetchPause = time.Second
)

// Consumer pulls from a JetStream consumer filtered to its handlers'
// routing keys and dispatches messages one at a time.
type Consumer struct {
	cons     jetstream.Consumer
	handlers map[string]Handler
	batch    int
	log      *slog.Logger
}

// NewConsumer binds the durable work queue to every handler's routing key.
// Prefetch bounds unacknowledged messages per consumer.
func NewConsumer(ctx context.Context, conn *Conn, cfg config.NATSConfig, handlers ...Handler) (*Consumer, error) {
	prefetch := max(cfg.Prefetch, 1)
	return newConsumer(ctx, conn, jetstream.ConsumerConfig{
		Durable:       cfg.Queue,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: prefetch,
	}, prefetch, handlers)
}

// NewFeedConsumer creates an ephemeral consumer that only sees messages
// published after it starts. It is removed by the server once idle.
func NewFeedConsumer(ctx context.Context, conn *Conn, handlers ...Handler) (*Consumer, error) {
	return newConsumer(ctx, conn, jetstream.ConsumerConfig{
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           10 * time.Second,
		MaxDeliver:        1,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: 5 * time.Minute,
	}, 10, handlers)
}

func newConsumer(ctx context.Context, conn *Conn, cc jetstream.ConsumerConfig, batch int, handlers []Handler) (*Consumer, error) {
	c, err := newDispatcher(handlers)
	if err != nil {
		return nil, err
	}
	cc.FilterSubjects = slices.Sorted(maps.Keys(c.handlers))

	stream, err := conn.js.Stream(ctx, conn.stream)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", conn.stream, err)
	}
	c.cons, err = stream.CreateOrUpdateConsumer(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", cc.Durable, err)
	}
	c.batch = batch

	c.log.Info("consumer bound", "consumer", cc.Durable, "routing_keys", cc.FilterSubjects)
	return c, nil
}

func newDispatcher(handlers []Handler) (*Consumer, error) {
	if len(handlers) == 0 {
		return nil, errors.New("consumer needs at least one handler")
	}
	c := &Consumer{
		handlers: make(map[string]Handler, len(handlers)),
		batch:    1,
		log:      slog.Default().With("component", "consumer"),
	}
	for _, h := range handlers {
		key := h.RoutingKey()
		if _, dup := c.handlers[key]; dup {
			return nil, fmt.Errorf("duplicate handler for routing key %s", key)
		}
		c.handlers[key] = h
	}
	return c, nil
}

// Pending returns the number of messages not yet delivered to this consumer.
func (c *Consumer) Pending(ctx context.Context) (uint64, error) {
	info, err := c.cons.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("consumer info: %w", err)
	}
	return info.NumPending, nil
}

// Run fetches and dispatches until ctx is cancelled. The message in flight
// when cancellation arrives is finished first. Fetch failures are logged and
// retried; Run only returns on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("consume loop started")
	for {
		if ctx.Err() != nil {
			c.log.Info("consume loop stopped")
			return nil
		}

		batch, err := c.cons.Fetch(c.batch, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.log.Warn("fetch messages", "error", err)
			sleep(ctx, fetchPause)
			continue
		}

		// in-flight messages finish even if shutdown starts mid-batch
		work := context.WithoutCancel(ctx)
		for msg := range batch.Messages() {
			c.Dispatch(work, msg)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && ctx.Err() == nil {
			c.log.Warn("fetch batch", "error", err)
			sleep(ctx, fetchPause)
		}
	}
}

// Dispatch routes one delivery to its handler and settles it:
// undecodable bodies are terminated, unrouted keys acked, handler failures
// and panics nak'ed for redelivery, successes acked.
func (c *Consumer) Dispatch(ctx context.Context, msg Delivery) {
	key := msg.Subject()
	log := c.log.With("routing_key", key)

	var env models.Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		log.Error("malformed message dropped", "error", err, "size", len(msg.Data()))
		settle(log, key, "term", msg.Term)
		return
	}
	log = log.With("event_id", env.EventID)

	h, ok := c.handlers[key]
	if !ok {
		log.Warn("no handler for routing key")
		settle(log, key, "ack", msg.Ack)
		return
	}

	if err := safeHandle(ctx, h, env); err != nil {
		log.Error("handler failed, requeueing", "error", err)
		settle(log, key, "nak", msg.Nak)
		return
	}
	settle(log, key, "ack", msg.Ack)
}

func safeHandle(ctx context.Context, h Handler, env models.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h.Handle(ctx, env)
}

func settle(log *slog.Logger, key, outcome string, fn func() error) {
	observability.MessagesConsumed.WithLabelValues(key, outcome).Inc()
	if err := fn(); err != nil {
		log.Warn("settle message", "outcome", outcome, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
