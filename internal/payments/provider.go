package payments

import (
	"context"
	"errors"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrIgnoredEvent marks webhook events that carry no payment state change.
	ErrIgnoredEvent = errors.New("payments: ignored event")
)

// ChargeRequest asks the gateway to open a remote charge for an order.
type ChargeRequest struct {
	OrderRef       string
	Amount         int64
	Currency       string
	Receipt        string
	Metadata       map[string]string
	IdempotencyKey string
}

// Charge is the gateway's handle for an opened charge.
type Charge struct {
	GatewayOrderID string
	ClientSecret   string
	Receipt        string
	Status         string
}

// RefundRequest returns funds for a captured charge. Amount is in minor units.
type RefundRequest struct {
	GatewayOrderID string
	Amount         int64
	Reason         string
	IdempotencyKey string
}

// Refund reports the gateway refund.
type Refund struct {
	GatewayRefundID string
	Succeeded       bool
	Pending         bool
}

// EventType enumerates the webhook events the coordinator reacts to.
type EventType string

const (
	EventPaymentCaptured EventType = "payment.captured"
	EventPaymentFailed   EventType = "payment.failed"
)

// Event is a verified gateway callback keyed by gateway order id.
type Event struct {
	ID               string
	Type             EventType
	GatewayOrderID   string
	GatewayPaymentID string
	FailureReason    string
}

// Gateway is the opaque payment collaborator: open a charge, refund it and verify callbacks.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
	ParseWebhook(payload []byte, signature string) (Event, error)
}
