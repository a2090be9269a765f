package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

type streamPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher emits outcome events as persisted stream messages. The event id
// doubles as the JetStream dedupe id.
type Publisher struct {
	js  streamPublisher
	now func() time.Time
}

func NewPublisher(conn *Conn) *Publisher {
	return &Publisher{js: conn.js, now: time.Now}
}

// Publish wraps data in an envelope whose event_type is the routing key and
// publishes it under that key. It returns the event id.
func (p *Publisher) Publish(ctx context.Context, routingKey string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal %s data: %w", routingKey, err)
	}

	env := models.Envelope{
		EventID:   uuid.NewString(),
		EventType: routingKey,
		Timestamp: p.now().UTC().Format(time.RFC3339Nano),
		Data:      payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	msg := nats.NewMsg(routingKey)
	msg.Data = body
	msg.Header.Set("Content-Type", "application/json")

	if _, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(env.EventID)); err != nil {
		observability.EventsPublished.WithLabelValues(routingKey, "error").Inc()
		slog.Error("publish event", "routing_key", routingKey, "event_id", env.EventID, "error", err)
		return "", fmt.Errorf("publish %s: %w", routingKey, err)
	}
	observability.EventsPublished.WithLabelValues(routingKey, "ok").Inc()
	return env.EventID, nil
}
