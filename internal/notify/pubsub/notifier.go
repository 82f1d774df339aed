// Package pubsub announces publishes on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/realtime-feeds/internal/notify"
)

// EventAttribute is set on every message so subscribers can filter.
const EventAttribute = "event"

// EventPublished is the event attribute value for publish announcements.
const EventPublished = "feeds.published"

// Notifier publishes announcements as JSON messages.
type Notifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New creates a Notifier for topicID using an existing client.
func New(client *pubsub.Client, topicID string) (*Notifier, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &Notifier{client: client, topic: client.Topic(topicID)}, nil
}

// Dial connects to Pub/Sub with ambient credentials.
func Dial(ctx context.Context, projectID, topicID string) (*Notifier, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	n, err := New(client, topicID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return n, nil
}

// Notify marshals the announcement and waits for the server-assigned id.
func (n *Notifier) Notify(ctx context.Context, a notify.Announcement) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal announcement: %w", err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{EventAttribute: EventPublished},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Attributes))

	id, err := n.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish announcement: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client.
func (n *Notifier) Close() error {
	n.topic.Stop()
	return n.client.Close()
}
