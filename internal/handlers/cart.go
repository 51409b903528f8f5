package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/auth"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/httpx"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/requestctx"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers serves the cart of the signed-in user or of a guest session.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs cart handlers. authn may be nil in tests that inject identity directly.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Get("/cart", h.getCart)
	r.Delete("/cart", h.clearCart)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{itemID}", h.updateItem)
	r.Delete("/cart/items/{itemID}", h.removeItem)
	r.Post("/cart/discounts", h.applyDiscount)
	r.Delete("/cart/discounts/{kind}", h.removeDiscount)
	r.Get("/cart:validate", h.validateCart)
	r.Post("/cart:merge", h.mergeCart)
}

func (h *CartHandlers) owner(w http.ResponseWriter, r *http.Request) (domain.CartOwner, bool) {
	owner, ok := cartOwner(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_owner_required", "sign in or send a session id", http.StatusUnauthorized))
	}
	return owner, ok
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	view, err := h.carts.Materialize(r.Context(), owner)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK, services.CartResult{Cart: view})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	result, err := h.carts.Clear(r.Context(), owner)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK, result)
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	result, err := h.carts.AddItem(r.Context(), services.AddCartItemCommand{
		Owner:     owner,
		ProductID: strings.TrimSpace(req.ProductID),
		Color:     strings.TrimSpace(req.Color),
		Size:      strings.TrimSpace(req.Size),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK, result)
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}
	result, err := h.carts.UpdateItem(r.Context(), services.UpdateCartItemCommand{
		Owner:    owner,
		ItemID:   chi.URLParam(r, "itemID"),
		Quantity: *req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK, result)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	result, err := h.carts.RemoveItem(r.Context(), owner, chi.URLParam(r, "itemID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK, result)
}

type applyDiscountRequest struct {
	Code string `json:"code"`
}

func (h *CartHandlers) applyDiscount(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req applyDiscountRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}
	result, err := h.carts.ApplyDiscount(r.Context(), owner, code)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK, result)
}

func (h *CartHandlers) removeDiscount(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	kind := domain.DiscountKind(strings.ToLower(chi.URLParam(r, "kind")))
	if kind != domain.DiscountKindCoupon && kind != domain.DiscountKindVoucher {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "kind must be coupon or voucher", http.StatusBadRequest))
		return
	}
	result, err := h.carts.RemoveDiscount(r.Context(), owner, kind)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK, result)
}

type cartIssuePayload struct {
	ItemID    string `json:"itemId"`
	ProductID string `json:"productId"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type cartValidationResponse struct {
	Valid  bool               `json:"valid"`
	Issues []cartIssuePayload `json:"issues"`
}

func (h *CartHandlers) validateCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	validation, err := h.carts.ValidateItems(r.Context(), owner)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	resp := cartValidationResponse{Valid: validation.Valid, Issues: make([]cartIssuePayload, 0, len(validation.Issues))}
	for _, issue := range validation.Issues {
		resp.Issues = append(resp.Issues, cartIssuePayload(issue))
	}
	noStore(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// mergeCart folds the guest session cart into the signed-in user's cart.
func (h *CartHandlers) mergeCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	session := requestctx.SessionID(r.Context())
	if session == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("session_required", "a guest session id is required to merge", http.StatusBadRequest))
		return
	}
	result, err := h.carts.MergeGuestIntoUser(r.Context(), session, identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, http.StatusOK, result)
}

type cartLinePayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	ProductCode string `json:"productCode,omitempty"`
	Image       string `json:"image,omitempty"`
	Color       string `json:"color"`
	Size        string `json:"size"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
	Available   int    `json:"available"`
}

type pricingPayload struct {
	Currency string `json:"currency"`
	Subtotal int64  `json:"subtotal"`
	Coupon   int64  `json:"couponDiscount"`
	Voucher  int64  `json:"voucherDiscount"`
	Discount int64  `json:"discount"`
	Shipping int64  `json:"shipping"`
	Tax      int64  `json:"tax"`
	Total    int64  `json:"total"`
}

type cartPayload struct {
	ID        string                  `json:"id"`
	Guest     bool                    `json:"guest"`
	Items     []cartLinePayload       `json:"items"`
	ItemCount int                     `json:"itemCount"`
	Coupon    *appliedDiscountPayload `json:"coupon,omitempty"`
	Voucher   *appliedDiscountPayload `json:"voucher,omitempty"`
	Pricing   pricingPayload          `json:"pricing"`
	UpdatedAt string                  `json:"updatedAt,omitempty"`
}

type cartResponse struct {
	Cart     cartPayload      `json:"cart"`
	Warnings []warningPayload `json:"warnings,omitempty"`
}

func buildCartPayload(view services.CartView) cartPayload {
	payload := cartPayload{
		ID:        view.Cart.ID,
		Guest:     view.Cart.Owner.IsGuest(),
		Items:     make([]cartLinePayload, 0, len(view.Lines)),
		Coupon:    buildAppliedDiscount(view.Cart.Coupon),
		Voucher:   buildAppliedDiscount(view.Cart.Voucher),
		Pricing:   pricingPayload(view.Pricing),
		UpdatedAt: formatTime(view.Cart.UpdatedAt),
	}
	for _, line := range view.Lines {
		payload.ItemCount += line.Quantity
		payload.Items = append(payload.Items, cartLinePayload{
			ID:          line.ItemID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			ProductCode: line.ProductCode,
			Image:       line.Image,
			Color:       line.Color,
			Size:        line.Size,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
			Available:   line.Available,
		})
	}
	return payload
}

func (h *CartHandlers) writeCart(w http.ResponseWriter, status int, result services.CartResult) {
	noStore(w)
	httpx.WriteJSON(w, status, cartResponse{
		Cart:     buildCartPayload(result.Cart),
		Warnings: buildWarnings(result.Warnings),
	})
}
