package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"cloud.google.com/go/pubsub"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/services"
)

const notificationTemplateOrderConfirmation = "order_confirmation"

// notificationMessage is rendered by the notification worker into an email or push message.
type notificationMessage struct {
	Template    string             `json:"template"`
	UserID      string             `json:"userId"`
	Locale      string             `json:"locale"`
	OrderID     string             `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	PaymentID   string             `json:"paymentId,omitempty"`
	Method      string             `json:"method,omitempty"`
	Total       int64              `json:"total"`
	Currency    string             `json:"currency"`
	TotalText   string             `json:"totalText"`
	Items       []notificationLine `json:"items"`
}

type notificationLine struct {
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"`
	Size     string `json:"size,omitempty"`
	Quantity int    `json:"quantity"`
	Amount   string `json:"amount"`
}

// PubSubNotificationSender queues order confirmations on the notifications topic.
type PubSubNotificationSender struct {
	topic   *pubsub.Topic
	locale  language.Tag
	marshal func(any) ([]byte, error)
}

// NewPubSubNotificationSender builds a sender that formats amounts for locale, e.g. "en-IN".
func NewPubSubNotificationSender(topic *pubsub.Topic, locale string) (*PubSubNotificationSender, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification sender: topic is required")
	}
	tag := language.English
	if trimmed := strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"); trimmed != "" {
		parsed, err := language.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("pubsub notification sender: invalid locale %q: %w", locale, err)
		}
		tag = parsed
	}
	return &PubSubNotificationSender{topic: topic, locale: tag, marshal: json.Marshal}, nil
}

// SendOrderConfirmation publishes the confirmation for the order's owner.
func (s *PubSubNotificationSender) SendOrderConfirmation(ctx context.Context, confirmation services.OrderConfirmation) error {
	if s == nil || s.topic == nil {
		return errors.New("pubsub notification sender: not initialised")
	}
	order := confirmation.Order
	userID := strings.TrimSpace(confirmation.UserID)
	if userID == "" {
		userID = order.UserID
	}
	if userID == "" || order.ID == "" {
		return errors.New("pubsub notification sender: user and order are required")
	}

	items := make([]notificationLine, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, notificationLine{
			Name:     line.ProductName,
			Color:    line.Color,
			Size:     line.Size,
			Quantity: line.Quantity,
			Amount:   s.formatMoney(line.LineTotal, order.Currency),
		})
	}

	data, err := s.marshal(notificationMessage{
		Template:    notificationTemplateOrderConfirmation,
		UserID:      userID,
		Locale:      s.locale.String(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		PaymentID:   confirmation.Payment.ID,
		Method:      order.PaymentMethod,
		Total:       order.Totals.Total,
		Currency:    order.Currency,
		TotalText:   s.formatMoney(order.Totals.Total, order.Currency),
		Items:       items,
	})
	if err != nil {
		return fmt.Errorf("marshal order confirmation: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "template", notificationTemplateOrderConfirmation)
	setAttr(attrs, "userId", userID)
	setAttr(attrs, "orderId", order.ID)

	result := s.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order confirmation: %w", err)
	}
	return nil
}

// formatMoney renders minor units with the currency symbol for the sender's locale.
// Unknown currency codes fall back to the raw amount followed by the code.
func (s *PubSubNotificationSender) formatMoney(amount int64, code string) string {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return fmt.Sprintf("%d %s", amount, strings.ToUpper(strings.TrimSpace(code)))
	}
	printer := message.NewPrinter(s.locale)
	scale, _ := currency.Standard.Rounding(unit)
	major := float64(amount) / math.Pow10(scale)
	return printer.Sprint(currency.Symbol(unit.Amount(major)))
}
