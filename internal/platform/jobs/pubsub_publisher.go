package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/kento-1999/Alpus-links-sub000/internal/services"
)

// ContentStatusMessage is the wire form of a content status patch.
type ContentStatusMessage struct {
	PostID     string    `json:"postId"`
	Status     string    `json:"status"`
	OrderID    string    `json:"orderId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PubSubContentSyncPublisher publishes content status patches to a Pub/Sub topic.
type PubSubContentSyncPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.ContentSyncPublisher = (*PubSubContentSyncPublisher)(nil)

// NewPubSubContentSyncPublisher constructs a Pub/Sub backed content sync publisher.
func NewPubSubContentSyncPublisher(topic *pubsub.Topic) (*PubSubContentSyncPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub content sync publisher: topic is required")
	}
	return &PubSubContentSyncPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishStatusPatch enqueues a content status patch on the configured topic.
func (p *PubSubContentSyncPublisher) PublishStatusPatch(ctx context.Context, patch services.ContentStatusPatch) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub content sync publisher: not initialised")
	}

	message := ContentStatusMessage{
		PostID:     strings.TrimSpace(patch.PostID),
		Status:     string(patch.Status),
		OrderID:    strings.TrimSpace(patch.OrderID),
		OccurredAt: patch.OccurredAt.UTC(),
	}
	data, err := p.marshal(message)
	if err != nil {
		return fmt.Errorf("marshal content status patch: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "postId", message.PostID)
	setAttr(attrs, "status", message.Status)
	setAttr(attrs, "orderId", message.OrderID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish content status patch: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
