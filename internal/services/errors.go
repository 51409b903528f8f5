package services

import (
	"errors"
	"fmt"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

// Kind categorises failures so transports can map them to a status code.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindBadRequest Kind = "bad_request"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

var (
	// ErrNotFound is the kind sentinel for absent entities.
	ErrNotFound = &kindError{kind: KindNotFound}
	// ErrBadRequest is the kind sentinel for malformed input and business rule violations.
	ErrBadRequest = &kindError{kind: KindBadRequest}
	// ErrConflict is the kind sentinel for uniqueness violations.
	ErrConflict = &kindError{kind: KindConflict}
	// ErrInternal is the kind sentinel for unexpected persistence or collaborator failures.
	ErrInternal = &kindError{kind: KindInternal}
)

type kindError struct{ kind Kind }

func (e *kindError) Error() string { return string(e.kind) }

// Error is a specific, stable failure with a machine readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Unwrap lets errors.Is match the kind sentinel.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindNotFound:
		return ErrNotFound
	case KindBadRequest:
		return ErrBadRequest
	case KindConflict:
		return ErrConflict
	default:
		return ErrInternal
	}
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidInput = newError(KindBadRequest, "invalid_input", "invalid input")

	ErrProductNotFound   = newError(KindNotFound, "product_not_found", "product not found")
	ErrProductInactive   = newError(KindBadRequest, "product_inactive", "product is not available")
	ErrVariantNotFound   = newError(KindBadRequest, "variant_not_found", "color or size not offered")
	ErrInsufficientStock = newError(KindBadRequest, "insufficient_stock", "insufficient stock")

	ErrCartNotFound     = newError(KindNotFound, "cart_not_found", "cart not found")
	ErrCartItemNotFound = newError(KindNotFound, "cart_item_not_found", "cart item not found")
	ErrEmptyCart        = newError(KindBadRequest, "empty_cart", "cart is empty")

	ErrDiscountNotFound          = newError(KindNotFound, "discount_not_found", "discount not found")
	ErrDiscountInactive          = newError(KindBadRequest, "discount_inactive", "discount is not active")
	ErrDiscountNotYetValid       = newError(KindBadRequest, "discount_not_yet_valid", "discount is not yet valid")
	ErrDiscountExpired           = newError(KindBadRequest, "discount_expired", "discount has expired")
	ErrDiscountUsageLimitReached = newError(KindBadRequest, "discount_usage_limit_reached", "discount usage limit reached")
	ErrMinPurchaseNotMet         = newError(KindBadRequest, "min_purchase_not_met", "minimum purchase amount not met")
	ErrAlreadyUsedByUser         = newError(KindBadRequest, "discount_already_used", "discount already used by this user")
	ErrDiscountInUse             = newError(KindBadRequest, "discount_in_use", "discount has been used and cannot be deleted")
	ErrDiscountCodeTaken         = newError(KindConflict, "discount_code_taken", "discount code already exists")

	ErrOrderNotFound           = newError(KindNotFound, "order_not_found", "order not found")
	ErrInvalidStatusTransition = newError(KindBadRequest, "invalid_status_transition", "invalid order status transition")
	ErrOrderNumberExhausted    = newError(KindConflict, "order_number_conflict", "could not allocate a unique order number")

	ErrPaymentNotFound         = newError(KindNotFound, "payment_not_found", "payment not found")
	ErrPaymentAlreadyInitiated = newError(KindConflict, "payment_already_initiated", "payment already initiated for order")
	ErrInvalidRefund           = newError(KindBadRequest, "invalid_refund", "refund is not allowed")
	ErrInvalidSignature        = newError(KindBadRequest, "invalid_signature", "webhook signature verification failed")
	ErrGateway                 = newError(KindInternal, "gateway_error", "payment gateway failure")
)

// Warning describes a degraded outcome that did not fail the operation.
type Warning struct {
	Code    string
	Message string
	ItemID  string
}

// KindOf returns the kind carried by err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	var k *kindError
	if errors.As(err, &k) {
		return k.kind
	}
	return KindInternal
}

// CodeOf returns the stable code carried by err.
func CodeOf(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return "internal_error"
}

// mapRepositoryError translates a categorised store failure into a service error.
func mapRepositoryError(err error, notFound *Error, conflict *Error) error {
	if err == nil {
		return nil
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict() && conflict != nil:
			return fmt.Errorf("%w: %v", conflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: repository unavailable: %v", ErrInternal, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
