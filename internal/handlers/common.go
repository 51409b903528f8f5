package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/auth"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/httpx"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/pagination"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/requestctx"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/services"
)

// writeServiceError maps the service error taxonomy onto the JSON envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request was cancelled", http.StatusGatewayTimeout))
		return
	}

	code := services.CodeOf(err)
	switch services.KindOf(err) {
	case services.KindNotFound:
		httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), http.StatusNotFound))
	case services.KindBadRequest:
		httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), http.StatusBadRequest))
	case services.KindConflict:
		httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), http.StatusConflict))
	default:
		requestctx.Logger(ctx).Error("request failed", zap.Error(err), zap.String("code", code))
		if code == "" {
			code = "internal_error"
		}
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrGateway) {
			status = http.StatusBadGateway
		}
		httpx.WriteError(ctx, w, httpx.NewError(code, "request could not be completed", status))
	}
}

func writeUnauthenticated(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
}

func requireUser(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthenticated(r.Context(), w)
		return nil, false
	}
	return identity, true
}

// cartOwner prefers the signed-in user and falls back to the guest session header.
func cartOwner(ctx context.Context) (domain.CartOwner, bool) {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return domain.CartOwner{UserID: identity.UID}, true
	}
	if session := requestctx.SessionID(ctx); session != "" {
		return domain.CartOwner{SessionID: session}, true
	}
	return domain.CartOwner{}, false
}

func actorID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return identity.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok {
		if svc.Email != "" {
			return svc.Email
		}
		return svc.Subject
	}
	return ""
}

func writePaymentsUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payments are not configured", http.StatusServiceUnavailable))
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	if err := httpx.DecodeJSON(r, limit, dst); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return false
	}
	return true
}

func paginationFromRequest(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

// Shared payloads ------------------------------------------------------------

type warningPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ItemID  string `json:"itemId,omitempty"`
}

func buildWarnings(warnings []services.Warning) []warningPayload {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]warningPayload, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, warningPayload{Code: w.Code, Message: w.Message, ItemID: w.ItemID})
	}
	return out
}

type appliedDiscountPayload struct {
	Code   string `json:"code"`
	Kind   string `json:"kind"`
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

func buildAppliedDiscount(d *domain.AppliedDiscount) *appliedDiscountPayload {
	if d == nil {
		return nil
	}
	return &appliedDiscountPayload{Code: d.Code, Kind: string(d.Kind), Type: string(d.Type), Amount: d.Amount}
}

type addressPayload struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a addressPayload) toDomain() domain.Address {
	return domain.Address{
		Recipient:  strings.TrimSpace(a.Recipient),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:      strings.TrimSpace(a.Phone),
	}
}

func buildAddress(a domain.Address) addressPayload {
	return addressPayload(a)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
