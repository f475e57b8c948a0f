package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mrops-br/emmytech-marketplace/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Message is the wire form of a product event.
type Message struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	ID         uint64    `json:"id"`
	Name       string    `json:"name"`
	Price      int64     `json:"price"`
	Owner      string    `json:"owner"`
	Purchased  bool      `json:"purchased"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewMessage(e domain.Event) Message {
	return Message{
		EventID:    e.ID.String(),
		Type:       string(e.Type),
		ID:         e.Product.ID,
		Name:       e.Product.Name,
		Price:      e.Product.Price,
		Owner:      e.Product.Owner.String(),
		Purchased:  e.Product.Purchased,
		OccurredAt: e.OccurredAt,
	}
}

// Subject maps an event type to "<prefix>.product.created" or "<prefix>.product.purchased".
func Subject(prefix string, t domain.EventType) string {
	suffix := strings.ToLower(strings.TrimPrefix(string(t), "Product"))
	return prefix + ".product." + suffix
}

// JetStreamPublisher is the subset of jetstream.JetStream used for publishing.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NatsPublisher sends events to NATS JetStream.
type NatsPublisher struct {
	js     JetStreamPublisher
	prefix string
}

func NewNatsPublisher(js JetStreamPublisher, prefix string) *NatsPublisher {
	return &NatsPublisher{js: js, prefix: prefix}
}

func (p *NatsPublisher) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(NewMessage(event))
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	// Deduplicates redeliveries on the server side.
	if _, err := p.js.Publish(ctx, Subject(p.prefix, event.Type), data, jetstream.WithMsgID(event.ID.String())); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// ConnectNats dials NATS and opens a JetStream context.
func ConnectNats(url string, timeout time.Duration) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url, nats.Timeout(timeout))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates or updates the stream that captures every subject under prefix.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name, prefix string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{prefix + ".>"},
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", name, err)
	}
	return nil
}
