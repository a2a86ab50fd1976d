package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	"github.com/kento-1999/Alpus-links-sub000/internal/services"
)

func TestPubSubContentSyncPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "content-sync")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubContentSyncPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubContentSyncPublisher: %v", err)
	}

	occurredAt := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	patch := services.ContentStatusPatch{
		PostID:     "post-1",
		Status:     domain.PostStatusApproved,
		OrderID:    "ord_test",
		OccurredAt: occurredAt,
	}

	if err := publisher.PublishStatusPatch(ctx, patch); err != nil {
		t.Fatalf("PublishStatusPatch: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload ContentStatusMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.PostID != patch.PostID || payload.Status != string(patch.Status) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !payload.OccurredAt.Equal(occurredAt) {
		t.Fatalf("expected occurredAt %v, got %v", occurredAt, payload.OccurredAt)
	}
	if attr := messages[0].Attributes["orderId"]; attr != "ord_test" {
		t.Fatalf("expected orderId attribute, got %q", attr)
	}
}
