package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/services"
)

func newTestTopic(t *testing.T, name string) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	srv, topic := newTestTopic(t, "order-events")

	publisher, err := NewPubSubOrderEventPublisher(topic, WithOrderingByOrder())
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	event := services.OrderEvent{
		Type:           "order.status.changed",
		OrderID:        "ord_123",
		OrderNumber:    "SW-2025-000042",
		UserID:         "user-1",
		PreviousStatus: "PROCESSING",
		CurrentStatus:  "SHIPPED",
		ActorID:        "admin-1",
		Total:          259900,
		Currency:       "INR",
		OccurredAt:     time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Metadata:       map[string]any{"trackingNumber": "TRK0001"},
	}
	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	msg := messages[0]
	if msg.Attributes["type"] != "order.status.changed" || msg.Attributes["status"] != "SHIPPED" {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
	if msg.OrderingKey != "ord_123" {
		t.Fatalf("expected ordering key ord_123, got %q", msg.OrderingKey)
	}

	var payload orderEventMessage
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderNumber != event.OrderNumber || payload.Total != event.Total || payload.PreviousStatus != "PROCESSING" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.Metadata["trackingNumber"] != "TRK0001" {
		t.Fatalf("expected metadata to round trip, got %v", payload.Metadata)
	}
}

func TestPubSubOrderEventPublisherRequiresOrderID(t *testing.T) {
	srv, topic := newTestTopic(t, "order-events")
	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}
	if err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{Type: "order.created"}); err == nil {
		t.Fatalf("expected error for missing order id")
	}
	if len(srv.Messages()) != 0 {
		t.Fatalf("expected nothing published")
	}
}

func TestNewPublishersRequireTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
	if _, err := NewPubSubNotificationSender(nil, "en-IN"); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}

func TestPubSubNotificationSenderPublishesConfirmation(t *testing.T) {
	srv, topic := newTestTopic(t, "notifications")

	sender, err := NewPubSubNotificationSender(topic, "en_IN")
	if err != nil {
		t.Fatalf("NewPubSubNotificationSender: %v", err)
	}

	order := domain.Order{
		ID:            "ord_123",
		OrderNumber:   "SW-2025-000042",
		UserID:        "user-1",
		Currency:      "INR",
		PaymentMethod: "card",
		Items: []domain.OrderLine{
			{ProductName: "Silk Top", Color: "Red", Size: "M", Quantity: 2, LineTotal: 259900},
		},
		Totals: domain.OrderTotals{Subtotal: 259900, Total: 259900},
	}
	err = sender.SendOrderConfirmation(context.Background(), services.OrderConfirmation{
		Order:   order,
		Payment: domain.Payment{ID: "pay_1"},
	})
	if err != nil {
		t.Fatalf("SendOrderConfirmation: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Attributes["userId"] != "user-1" {
		t.Fatalf("expected user id to fall back to order owner, got %v", messages[0].Attributes)
	}

	var payload notificationMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Template != notificationTemplateOrderConfirmation || payload.PaymentID != "pay_1" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.Locale != "en-IN" {
		t.Fatalf("expected canonical locale, got %q", payload.Locale)
	}
	if !strings.Contains(payload.TotalText, "2,599") {
		t.Fatalf("expected formatted major units in %q", payload.TotalText)
	}
	if len(payload.Items) != 1 || payload.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %#v", payload.Items)
	}
}

func TestPubSubNotificationSenderRejectsInvalidLocale(t *testing.T) {
	_, topic := newTestTopic(t, "notifications")
	if _, err := NewPubSubNotificationSender(topic, "not a locale!"); err == nil {
		t.Fatalf("expected locale error")
	}
}

func TestFormatMoneyUnknownCurrency(t *testing.T) {
	sender := &PubSubNotificationSender{}
	if got := sender.formatMoney(1500, "zzz"); !strings.Contains(got, "1500") || !strings.Contains(got, "ZZZ") {
		t.Fatalf("unexpected fallback %q", got)
	}
}
