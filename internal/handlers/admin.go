package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/auth"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/httpx"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/services"
)

const maxAdminBodySize = 64 * 1024

// AdminHandlers exposes staff operations on discounts, payments and orders.
type AdminHandlers struct {
	authn     *auth.Authenticator
	discounts services.DiscountService
	payments  services.PaymentService
	orders    services.OrderService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(authn *auth.Authenticator, discounts services.DiscountService, payments services.PaymentService, orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{authn: authn, discounts: discounts, payments: payments, orders: orders}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/admin/discounts", h.listDiscounts)
	r.Post("/admin/discounts", h.createDiscount)
	r.Get("/admin/discounts/{discountID}", h.getDiscount)
	r.Put("/admin/discounts/{discountID}", h.updateDiscount)
	r.Delete("/admin/discounts/{discountID}", h.deleteDiscount)
	r.Get("/admin/payments/{paymentID}", h.getPayment)
	r.Post("/admin/payments/{paymentID}:refund", h.refundPayment)
	r.Post("/admin/orders/{orderID}:transition", h.transitionOrder)
}

type discountRequest struct {
	Code                 string     `json:"code"`
	Description          string     `json:"description"`
	Kind                 string     `json:"kind"`
	Type                 string     `json:"type"`
	Value                float64    `json:"value"`
	MinPurchase          *int64     `json:"minPurchase"`
	MaxDiscount          *int64     `json:"maxDiscount"`
	BuyX                 int        `json:"buyX"`
	GetY                 int        `json:"getY"`
	ApplicableCategories []string   `json:"applicableCategories"`
	ExcludedProducts     []string   `json:"excludedProducts"`
	ValidFrom            *time.Time `json:"validFrom"`
	ValidUntil           *time.Time `json:"validUntil"`
	UsageLimit           *int       `json:"usageLimit"`
	Active               *bool      `json:"active"`
}

func (req discountRequest) toInput() services.DiscountInput {
	input := services.DiscountInput{
		Code:                 req.Code,
		Description:          req.Description,
		Kind:                 domain.DiscountKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Type:                 domain.DiscountType(strings.TrimSpace(req.Type)),
		Value:                req.Value,
		MinPurchase:          req.MinPurchase,
		MaxDiscount:          req.MaxDiscount,
		BuyX:                 req.BuyX,
		GetY:                 req.GetY,
		ApplicableCategories: req.ApplicableCategories,
		ExcludedProducts:     req.ExcludedProducts,
		UsageLimit:           req.UsageLimit,
		Active:               true,
	}
	if req.ValidFrom != nil {
		input.ValidFrom = req.ValidFrom.UTC()
	}
	if req.ValidUntil != nil {
		input.ValidUntil = req.ValidUntil.UTC()
	}
	if req.Active != nil {
		input.Active = *req.Active
	}
	return input
}

type discountPayload struct {
	ID                   string   `json:"id"`
	Code                 string   `json:"code"`
	Description          string   `json:"description,omitempty"`
	Kind                 string   `json:"kind"`
	Type                 string   `json:"type"`
	Value                float64  `json:"value"`
	MinPurchase          *int64   `json:"minPurchase,omitempty"`
	MaxDiscount          *int64   `json:"maxDiscount,omitempty"`
	BuyX                 int      `json:"buyX,omitempty"`
	GetY                 int      `json:"getY,omitempty"`
	ApplicableCategories []string `json:"applicableCategories,omitempty"`
	ExcludedProducts     []string `json:"excludedProducts,omitempty"`
	ValidFrom            string   `json:"validFrom,omitempty"`
	ValidUntil           string   `json:"validUntil,omitempty"`
	UsageLimit           *int     `json:"usageLimit,omitempty"`
	UsedCount            int      `json:"usedCount"`
	Active               bool     `json:"active"`
	CreatedAt            string   `json:"createdAt"`
	UpdatedAt            string   `json:"updatedAt"`
}

func buildDiscountPayload(d domain.Discount) discountPayload {
	return discountPayload{
		ID:                   d.ID,
		Code:                 d.Code,
		Description:          d.Description,
		Kind:                 string(d.Kind),
		Type:                 string(d.Type),
		Value:                d.Value,
		MinPurchase:          d.MinPurchase,
		MaxDiscount:          d.MaxDiscount,
		BuyX:                 d.BuyX,
		GetY:                 d.GetY,
		ApplicableCategories: d.ApplicableCategories,
		ExcludedProducts:     d.ExcludedProducts,
		ValidFrom:            formatTime(d.ValidFrom),
		ValidUntil:           formatTime(d.ValidUntil),
		UsageLimit:           d.UsageLimit,
		UsedCount:            d.UsedCount,
		Active:               d.Active,
		CreatedAt:            formatTime(d.CreatedAt),
		UpdatedAt:            formatTime(d.UpdatedAt),
	}
}

type discountListResponse struct {
	Items         []discountPayload `json:"items"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

func (h *AdminHandlers) listDiscounts(w http.ResponseWriter, r *http.Request) {
	page, ok := paginationFromRequest(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := services.DiscountListFilter{
		Kind:       domain.DiscountKind(strings.ToLower(strings.TrimSpace(query.Get("kind")))),
		ActiveOnly: strings.EqualFold(query.Get("active"), "true"),
		Pagination: page,
	}
	switch filter.Kind {
	case "", domain.DiscountKindCoupon, domain.DiscountKindVoucher:
	default:
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "kind must be coupon or voucher", http.StatusBadRequest))
		return
	}

	result, err := h.discounts.List(r.Context(), filter)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	resp := discountListResponse{Items: make([]discountPayload, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, d := range result.Items {
		resp.Items = append(resp.Items, buildDiscountPayload(d))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminHandlers) createDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	discount, err := h.discounts.Create(r.Context(), req.toInput())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/admin/discounts/"+discount.ID)
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"discount": buildDiscountPayload(discount)})
}

func (h *AdminHandlers) getDiscount(w http.ResponseWriter, r *http.Request) {
	discount, err := h.discounts.Get(r.Context(), chi.URLParam(r, "discountID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"discount": buildDiscountPayload(discount)})
}

func (h *AdminHandlers) updateDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	discount, err := h.discounts.Update(r.Context(), chi.URLParam(r, "discountID"), req.toInput())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"discount": buildDiscountPayload(discount)})
}

func (h *AdminHandlers) deleteDiscount(w http.ResponseWriter, r *http.Request) {
	if err := h.discounts.Delete(r.Context(), chi.URLParam(r, "discountID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writePaymentsUnavailable(r.Context(), w)
		return
	}
	payment, err := h.payments.GetPayment(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"payment": buildPaymentPayload(payment, false)})
}

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (h *AdminHandlers) refundPayment(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writePaymentsUnavailable(r.Context(), w)
		return
	}
	var req refundRequest
	if r.ContentLength != 0 && !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	payment, err := h.payments.RefundPayment(r.Context(), services.RefundPaymentCommand{
		PaymentID: chi.URLParam(r, "paymentID"),
		Amount:    req.Amount,
		Reason:    req.Reason,
		ActorID:   actorID(r.Context()),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"payment": buildPaymentPayload(payment, false)})
}

type transitionRequest struct {
	Status         string `json:"status"`
	Reason         string `json:"reason"`
	TrackingNumber string `json:"trackingNumber"`
}

func (h *AdminHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	transitionOrder(w, r, h.orders)
}

// transitionOrder is shared by staff and internal callers; the actor comes from whichever identity authenticated.
func transitionOrder(w http.ResponseWriter, r *http.Request, orders services.OrderService) {
	var req transitionRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	target := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "unknown order status", http.StatusBadRequest))
		return
	}
	result, err := orders.TransitionStatus(r.Context(), services.OrderTransitionCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		TargetStatus:   target,
		ActorID:        actorID(r.Context()),
		Reason:         req.Reason,
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeTransition(w, result)
}
