package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/services"
)

// InternalHandlers serves service-to-service calls such as fulfilment updates.
// Callers are authenticated by OIDC middleware installed on the route group.
type InternalHandlers struct {
	orders services.OrderService
}

// NewInternalHandlers constructs internal handlers.
func NewInternalHandlers(orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{orders: orders}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	r.Post("/internal/orders/{orderID}:transition", h.transition)
}

func (h *InternalHandlers) transition(w http.ResponseWriter, r *http.Request) {
	transitionOrder(w, r, h.orders)
}
