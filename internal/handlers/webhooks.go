package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/httpx"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/requestctx"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/services"
)

const (
	maxWebhookBodySize    = 1 << 20
	stripeSignatureHeader = "Stripe-Signature"
)

// WebhookHandlers receives payment provider callbacks. Authenticity comes from the payload signature.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	r.Post("/webhooks/payments/stripe", h.stripe)
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	signature := r.Header.Get(stripeSignatureHeader)
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "missing signature header", http.StatusBadRequest))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload too large", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read webhook payload", http.StatusBadRequest))
		return
	}

	if err := h.payments.HandleWebhook(ctx, payload, signature); err != nil {
		if errors.Is(err, services.ErrInvalidSignature) {
			requestctx.Logger(ctx).Warn("webhook signature rejected", zap.Error(err))
		}
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
