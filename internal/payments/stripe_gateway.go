package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/textutil"
)

const stripeMetadataValueLimit = 500

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	clients       *stripeClients
}

// StripeGateway implements Gateway with PaymentIntents. The intent ID is the gateway order id.
type StripeGateway struct {
	api           stripeClients
	webhookSecret string
	logger        StripeLogger
}

// NewStripeGateway constructs a Stripe backed gateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	var clients stripeClients
	if cfg.clients != nil {
		clients = *cfg.clients
	} else {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{intents: sc.PaymentIntents, refunds: sc.Refunds}
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeGateway{api: clients, webhookSecret: cfg.WebhookSecret, logger: logger}, nil
}

// CreateCharge opens a PaymentIntent for the order amount.
func (g *StripeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	// Stripe rejects metadata values over 500 characters.
	metadata := textutil.NormalizeStringMap(req.Metadata, stripeMetadataValueLimit)
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["orderRef"] = req.OrderRef
	metadata["receipt"] = req.Receipt

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Receipt),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.Metadata = metadata
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	intent, err := g.api.intents.New(params)
	if err != nil {
		return Charge{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderRef":      req.OrderRef,
		"amount":        req.Amount,
	})
	return Charge{
		GatewayOrderID: intent.ID,
		ClientSecret:   intent.ClientSecret,
		Receipt:        req.Receipt,
		Status:         string(intent.Status),
	}, nil
}

// Refund refunds part or all of a captured PaymentIntent.
func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.GatewayOrderID),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if req.Reason != "" {
		params.Metadata = map[string]string{"reason": req.Reason}
	}

	refund, err := g.api.refunds.New(params)
	if err != nil {
		return Refund{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": req.GatewayOrderID,
		"refund":        refund.ID,
		"status":        refund.Status,
	})
	return Refund{
		GatewayRefundID: refund.ID,
		Succeeded:       refund.Status == stripe.RefundStatusSucceeded,
		Pending:         refund.Status == stripe.RefundStatusPending || refund.Status == stripe.RefundStatusRequiresAction,
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps PaymentIntent events.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var kind EventType
	switch event.Type {
	case "payment_intent.succeeded":
		kind = EventPaymentCaptured
	case "payment_intent.payment_failed", "payment_intent.canceled":
		kind = EventPaymentFailed
	default:
		return Event{ID: event.ID}, fmt.Errorf("%w: %s", ErrIgnoredEvent, event.Type)
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return Event{}, fmt.Errorf("stripe: decode payment intent: %w", err)
	}

	out := Event{ID: event.ID, Type: kind, GatewayOrderID: intent.ID}
	if intent.LatestCharge != nil {
		out.GatewayPaymentID = intent.LatestCharge.ID
	}
	if kind == EventPaymentFailed {
		out.FailureReason = string(intent.CancellationReason)
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			out.FailureReason = intent.LastPaymentError.Msg
		}
	}
	return out, nil
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

var _ Gateway = (*StripeGateway)(nil)
