package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/auth"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/httpx"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrderHandlers serves the signed-in user's orders and payment initiation.
type OrderHandlers struct {
	authn      *auth.Authenticator
	orders     services.OrderService
	payments   services.PaymentService
	idempotent func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards order placement and payment initiation with mw.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) { h.idempotent = mw }
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders, payments: payments}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.idempotent == nil {
		h.idempotent = func(next http.Handler) http.Handler { return next }
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.With(h.idempotent).Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}:cancel", h.cancelOrder)
	r.Post("/orders/{orderID}:return", h.returnOrder)
	r.With(h.idempotent).Post("/orders/{orderID}/payments", h.initiatePayment)
}

type createOrderRequest struct {
	ShippingAddress addressPayload  `json:"shippingAddress"`
	BillingAddress  *addressPayload `json:"billingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	Notes           string          `json:"notes"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
	ItemCount   int    `json:"itemCount"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type createOrderResponse struct {
	Order    orderPayload        `json:"order"`
	Summary  orderSummaryPayload `json:"summary"`
	Warnings []warningPayload    `json:"warnings,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	cmd := services.CreateOrderCommand{
		UserID:          identity.UID,
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   strings.ToLower(strings.TrimSpace(req.PaymentMethod)),
		Notes:           req.Notes,
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		cmd.BillingAddress = &billing
	}

	result, err := h.orders.CreateOrder(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+result.Order.ID)
	httpx.WriteJSON(w, http.StatusCreated, createOrderResponse{
		Order: buildOrderPayload(result.Order),
		Summary: orderSummaryPayload{
			ID:          result.Summary.ID,
			OrderNumber: result.Summary.OrderNumber,
			Status:      string(result.Summary.Status),
			Total:       result.Summary.Total,
			Currency:    result.Summary.Currency,
			ItemCount:   result.Summary.ItemCount,
			CreatedAt:   formatTime(result.Order.CreatedAt),
		},
		Warnings: buildWarnings(result.Warnings),
	})
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	page, ok := paginationFromRequest(w, r)
	if !ok {
		return
	}
	statuses, ok := parseStatusFilter(w, r)
	if !ok {
		return
	}

	result, err := h.orders.ListOrders(r.Context(), services.OrderListFilter{
		UserID:     identity.UID,
		Status:     statuses,
		Pagination: page,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	resp := orderListResponse{Items: make([]orderSummaryPayload, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, order := range result.Items {
		resp.Items = append(resp.Items, summarizeOrder(order))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type orderTransitionResponse struct {
	Order    orderPayload     `json:"order"`
	Warnings []warningPayload `json:"warnings,omitempty"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 && !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	result, err := h.orders.Cancel(r.Context(), services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeTransition(w, result)
}

func (h *OrderHandlers) returnOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 && !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	result, err := h.orders.Return(r.Context(), services.ReturnOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeTransition(w, result)
}

func (h *OrderHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	if h.payments == nil {
		writePaymentsUnavailable(r.Context(), w)
		return
	}
	payment, err := h.payments.InitiatePayment(r.Context(), services.InitiatePaymentCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	noStore(w)
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"payment": buildPaymentPayload(payment, true)})
}

func writeTransition(w http.ResponseWriter, result services.OrderTransitionResult) {
	httpx.WriteJSON(w, http.StatusOK, orderTransitionResponse{
		Order:    buildOrderPayload(result.Order),
		Warnings: buildWarnings(result.Warnings),
	})
}

func parseStatusFilter(w http.ResponseWriter, r *http.Request) ([]domain.OrderStatus, bool) {
	var statuses []domain.OrderStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status := domain.OrderStatus(part)
			if !status.Valid() {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "unknown order status "+part, http.StatusBadRequest))
				return nil, false
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, true
}

type orderLinePayload struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	ProductCode string `json:"productCode,omitempty"`
	Image       string `json:"image,omitempty"`
	Color       string `json:"color"`
	Size        string `json:"size"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

type orderPayload struct {
	ID                string                  `json:"id"`
	OrderNumber       string                  `json:"orderNumber"`
	UserID            string                  `json:"userId"`
	Status            string                  `json:"status"`
	Currency          string                  `json:"currency"`
	Items             []orderLinePayload      `json:"items"`
	Totals            orderTotalsPayload      `json:"totals"`
	Coupon            *appliedDiscountPayload `json:"coupon,omitempty"`
	Voucher           *appliedDiscountPayload `json:"voucher,omitempty"`
	ShippingAddress   addressPayload          `json:"shippingAddress"`
	BillingAddress    addressPayload          `json:"billingAddress"`
	PaymentMethod     string                  `json:"paymentMethod"`
	Notes             string                  `json:"notes,omitempty"`
	EstimatedDelivery string                  `json:"estimatedDelivery,omitempty"`
	TrackingNumber    string                  `json:"trackingNumber,omitempty"`
	CancelReason      string                  `json:"cancelReason,omitempty"`
	ReturnReason      string                  `json:"returnReason,omitempty"`
	CreatedAt         string                  `json:"createdAt"`
	UpdatedAt         string                  `json:"updatedAt"`
	ShippedAt         string                  `json:"shippedAt,omitempty"`
	DeliveredAt       string                  `json:"deliveredAt,omitempty"`
	CancelledAt       string                  `json:"cancelledAt,omitempty"`
	ReturnedAt        string                  `json:"returnedAt,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		UserID:            order.UserID,
		Status:            string(order.Status),
		Currency:          order.Currency,
		Items:             make([]orderLinePayload, 0, len(order.Items)),
		Totals:            orderTotalsPayload(order.Totals),
		Coupon:            buildAppliedDiscount(order.Coupon),
		Voucher:           buildAppliedDiscount(order.Voucher),
		ShippingAddress:   buildAddress(order.ShippingAddress),
		BillingAddress:    buildAddress(order.BillingAddress),
		PaymentMethod:     order.PaymentMethod,
		Notes:             order.Notes,
		EstimatedDelivery: formatTimePtr(order.EstimatedDelivery),
		TrackingNumber:    order.TrackingNumber,
		CancelReason:      order.CancelReason,
		ReturnReason:      order.ReturnReason,
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
		ShippedAt:         formatTimePtr(order.ShippedAt),
		DeliveredAt:       formatTimePtr(order.DeliveredAt),
		CancelledAt:       formatTimePtr(order.CancelledAt),
		ReturnedAt:        formatTimePtr(order.ReturnedAt),
	}
	for _, line := range order.Items {
		payload.Items = append(payload.Items, orderLinePayload{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			ProductCode: line.ProductCode,
			Image:       line.Image,
			Color:       line.Color,
			Size:        line.Size,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}
	return payload
}

func summarizeOrder(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Total:       order.Totals.Total,
		Currency:    order.Currency,
		ItemCount:   order.ItemCount(),
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

type refundPayload struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type paymentPayload struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"orderId"`
	GatewayOrderID string          `json:"gatewayOrderId,omitempty"`
	Receipt        string          `json:"receipt"`
	ClientSecret   string          `json:"clientSecret,omitempty"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	Method         string          `json:"method"`
	Status         string          `json:"status"`
	FailureReason  string          `json:"failureReason,omitempty"`
	RefundRequired bool            `json:"refundRequired,omitempty"`
	Refunded       int64           `json:"refunded"`
	Refunds        []refundPayload `json:"refunds,omitempty"`
	CreatedAt      string          `json:"createdAt"`
	CapturedAt     string          `json:"capturedAt,omitempty"`
}

// buildPaymentPayload exposes the client secret only to the shopper who initiated the payment.
func buildPaymentPayload(payment domain.Payment, withSecret bool) paymentPayload {
	payload := paymentPayload{
		ID:             payment.ID,
		OrderID:        payment.OrderID,
		GatewayOrderID: payment.GatewayOrderID,
		Receipt:        payment.Receipt,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Method:         payment.Method,
		Status:         string(payment.Status),
		FailureReason:  payment.FailureReason,
		RefundRequired: payment.RefundRequired,
		Refunded:       payment.RefundedAmount(),
		CreatedAt:      formatTime(payment.CreatedAt),
		CapturedAt:     formatTimePtr(payment.CapturedAt),
	}
	if withSecret {
		payload.ClientSecret = payment.ClientSecret
	}
	for _, refund := range payment.Refunds {
		payload.Refunds = append(payload.Refunds, refundPayload{
			ID:        refund.ID,
			Amount:    refund.Amount,
			Reason:    refund.Reason,
			Status:    string(refund.Status),
			CreatedAt: formatTime(refund.CreatedAt),
		})
	}
	return payload
}
