package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/auth"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/requestctx"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/services"
)

// Unimplemented methods panic through the nil embedded interface.

type stubCartService struct {
	services.CartService
	materializeFn func(context.Context, domain.CartOwner) (services.CartView, error)
	addFn         func(context.Context, services.AddCartItemCommand) (services.CartResult, error)
	updateFn      func(context.Context, services.UpdateCartItemCommand) (services.CartResult, error)
	applyFn       func(context.Context, domain.CartOwner, string) (services.CartResult, error)
	removeDiscFn  func(context.Context, domain.CartOwner, domain.DiscountKind) (services.CartResult, error)
	mergeFn       func(context.Context, string, string) (services.CartResult, error)
	validateFn    func(context.Context, domain.CartOwner) (services.CartValidation, error)
}

func (s *stubCartService) Materialize(ctx context.Context, owner domain.CartOwner) (services.CartView, error) {
	return s.materializeFn(ctx, owner)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartResult, error) {
	return s.addFn(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartResult, error) {
	return s.updateFn(ctx, cmd)
}

func (s *stubCartService) ApplyDiscount(ctx context.Context, owner domain.CartOwner, code string) (services.CartResult, error) {
	return s.applyFn(ctx, owner, code)
}

func (s *stubCartService) RemoveDiscount(ctx context.Context, owner domain.CartOwner, kind domain.DiscountKind) (services.CartResult, error) {
	return s.removeDiscFn(ctx, owner, kind)
}

func (s *stubCartService) MergeGuestIntoUser(ctx context.Context, sessionID, userID string) (services.CartResult, error) {
	return s.mergeFn(ctx, sessionID, userID)
}

func (s *stubCartService) ValidateItems(ctx context.Context, owner domain.CartOwner) (services.CartValidation, error) {
	return s.validateFn(ctx, owner)
}

type stubOrderService struct {
	services.OrderService
	createFn     func(context.Context, services.CreateOrderCommand) (services.OrderResult, error)
	getFn        func(context.Context, string, string) (domain.Order, error)
	listFn       func(context.Context, services.OrderListFilter) (domain.CursorPage[domain.Order], error)
	transitionFn func(context.Context, services.OrderTransitionCommand) (services.OrderTransitionResult, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (services.OrderTransitionResult, error)
	returnFn     func(context.Context, services.ReturnOrderCommand) (services.OrderTransitionResult, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderResult, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	return s.getFn(ctx, orderID, userID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderTransitionCommand) (services.OrderTransitionResult, error) {
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.OrderTransitionResult, error) {
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) Return(ctx context.Context, cmd services.ReturnOrderCommand) (services.OrderTransitionResult, error) {
	return s.returnFn(ctx, cmd)
}

type stubPaymentService struct {
	services.PaymentService
	initiateFn func(context.Context, services.InitiatePaymentCommand) (domain.Payment, error)
	webhookFn  func(context.Context, []byte, string) error
	refundFn   func(context.Context, services.RefundPaymentCommand) (domain.Payment, error)
}

func (s *stubPaymentService) InitiatePayment(ctx context.Context, cmd services.InitiatePaymentCommand) (domain.Payment, error) {
	return s.initiateFn(ctx, cmd)
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return s.webhookFn(ctx, payload, signature)
}

func (s *stubPaymentService) RefundPayment(ctx context.Context, cmd services.RefundPaymentCommand) (domain.Payment, error) {
	return s.refundFn(ctx, cmd)
}

type stubDiscountService struct {
	services.DiscountService
	createFn func(context.Context, services.DiscountInput) (domain.Discount, error)
	listFn   func(context.Context, services.DiscountListFilter) (domain.CursorPage[domain.Discount], error)
	deleteFn func(context.Context, string) error
}

func (s *stubDiscountService) Create(ctx context.Context, input services.DiscountInput) (domain.Discount, error) {
	return s.createFn(ctx, input)
}

func (s *stubDiscountService) List(ctx context.Context, filter services.DiscountListFilter) (domain.CursorPage[domain.Discount], error) {
	return s.listFn(ctx, filter)
}

func (s *stubDiscountService) Delete(ctx context.Context, discountID string) error {
	return s.deleteFn(ctx, discountID)
}

type requestOption func(*http.Request) *http.Request

func asUser(uid string, roles ...string) requestOption {
	return func(r *http.Request) *http.Request {
		return r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{UID: uid, Roles: roles}))
	}
}

func withSession(id string) requestOption {
	return func(r *http.Request) *http.Request {
		return r.WithContext(requestctx.WithSessionID(r.Context(), id))
	}
}

// serve mounts routes on a bare chi router so the handlers run without the auth middleware.
func serve(t *testing.T, routes RouteRegistrar, method, target, body string, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	routes(router)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		req = opt(req)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}
