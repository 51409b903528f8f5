package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/payments"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

const (
	paymentIDPrefix = "pay_"
	refundIDPrefix  = "rfd_"
	receiptPrefix   = "rcpt_"

	systemActor = "system:payments"
)

// PaymentServiceDeps bundles collaborators for the payment coordinator.
type PaymentServiceDeps struct {
	Payments    repositories.PaymentRepository
	Orders      OrderService
	Carts       CartService
	Gateway     payments.Gateway
	Notifier    OrderNotifier
	Receipts    ReceiptArchiver
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments repositories.PaymentRepository
	orders   OrderService
	carts    CartService
	gateway  payments.Gateway
	notifier OrderNotifier
	receipts ReceiptArchiver
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires the payment coordinator.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		payments: deps.Payments,
		orders:   deps.Orders,
		carts:    deps.Carts,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		receipts: deps.Receipts,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// InitiatePayment opens the single payment of an order. Cash on delivery skips the gateway and
// moves the order straight to PROCESSING.
func (s *paymentService) InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (domain.Payment, error) {
	order, err := s.orders.GetOrder(ctx, cmd.OrderID, cmd.UserID)
	if err != nil {
		return domain.Payment{}, err
	}
	if existing, err := s.payments.FindByOrderID(ctx, order.ID); err == nil {
		// a cash on delivery payment whose order transition failed is resumed rather than refused
		if existing.Method == domain.PaymentMethodCOD && existing.Status == domain.PaymentStatusPending &&
			order.Status == domain.OrderStatusPending {
			return s.acceptCashOnDelivery(ctx, order, existing)
		}
		return domain.Payment{}, fmt.Errorf("%w: %s", ErrPaymentAlreadyInitiated, order.ID)
	} else if !isNotFound(err) {
		return domain.Payment{}, mapRepositoryError(err, nil, nil)
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Payment{}, fmt.Errorf("%w: order in status %s is not awaiting payment", ErrInvalidStatusTransition, order.Status)
	}

	now := s.clock()
	payment := domain.Payment{
		ID:        paymentIDPrefix + s.newID(),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Amount:    order.Totals.Total,
		Currency:  order.Currency,
		Method:    order.PaymentMethod,
		Receipt:   receiptPrefix + order.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if order.PaymentMethod == domain.PaymentMethodCOD {
		payment.Status = domain.PaymentStatusPending
		if err := s.payments.Insert(ctx, payment); err != nil {
			return domain.Payment{}, mapRepositoryError(err, nil, ErrPaymentAlreadyInitiated)
		}
		return s.acceptCashOnDelivery(ctx, order, payment)
	}

	charge, err := s.gateway.CreateCharge(ctx, payments.ChargeRequest{
		OrderRef: order.ID,
		Amount:   order.Totals.Total,
		Currency: order.Currency,
		Receipt:  payment.Receipt,
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"userId":      order.UserID,
		},
		IdempotencyKey: "charge-" + order.ID,
	})
	if err != nil {
		s.logger(ctx, "payment.charge.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return domain.Payment{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	payment.Status = domain.PaymentStatusCreated
	payment.GatewayOrderID = charge.GatewayOrderID
	payment.ClientSecret = charge.ClientSecret
	if err := s.payments.Insert(ctx, payment); err != nil {
		return domain.Payment{}, mapRepositoryError(err, nil, ErrPaymentAlreadyInitiated)
	}
	s.logger(ctx, "payment.initiated", map[string]any{
		"orderId":        order.ID,
		"paymentId":      payment.ID,
		"gatewayOrderId": payment.GatewayOrderID,
	})
	return payment, nil
}

// acceptCashOnDelivery moves the order of a stored COD payment to PROCESSING.
func (s *paymentService) acceptCashOnDelivery(ctx context.Context, order domain.Order, payment domain.Payment) (domain.Payment, error) {
	if _, err := s.orders.TransitionStatus(ctx, OrderTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusProcessing,
		ActorID:      systemActor,
		Reason:       "cash on delivery",
	}); err != nil {
		s.logger(ctx, "payment.cod.transition.failed", map[string]any{"orderId": order.ID, "paymentId": payment.ID, "error": err.Error()})
		return domain.Payment{}, err
	}
	s.logger(ctx, "payment.cod.accepted", map[string]any{"orderId": order.ID, "paymentId": payment.ID})
	return payment, nil
}

// HandleSuccessfulPayment captures the payment and moves the order to PROCESSING. Replays are no-ops.
// Money captured for an order that is already closed is flagged for refund and gets no confirmation.
func (s *paymentService) HandleSuccessfulPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (domain.Payment, error) {
	payment, err := s.findByGatewayOrder(ctx, gatewayOrderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.Status == domain.PaymentStatusCaptured || payment.Status == domain.PaymentStatusRefunded ||
		payment.Status == domain.PaymentStatusPartiallyRefunded {
		return payment, nil
	}

	order, err := s.orders.GetOrder(ctx, payment.OrderID, "")
	if err != nil {
		return domain.Payment{}, err
	}

	now := s.clock()
	payment.Status = domain.PaymentStatusCaptured
	payment.GatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	payment.FailureReason = ""
	payment.RefundRequired = !orderAwaitsCapture(order.Status)
	payment.CapturedAt = &now
	payment.UpdatedAt = now
	if err := s.payments.Update(ctx, payment); err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound, nil)
	}
	if payment.RefundRequired {
		s.flagRefundRequired(ctx, order, payment)
		return payment, nil
	}

	order, err = s.advanceCapturedOrder(ctx, order)
	if errors.Is(err, ErrInvalidStatusTransition) {
		// the order was closed while the capture was being recorded
		payment.RefundRequired = true
		if err := s.payments.Update(ctx, payment); err != nil {
			return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound, nil)
		}
		s.flagRefundRequired(ctx, order, payment)
		return payment, nil
	}
	if err != nil {
		return domain.Payment{}, err
	}

	s.afterCapture(ctx, order, payment)
	return payment, nil
}

func orderAwaitsCapture(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusFailed, domain.OrderStatusProcessing:
		return true
	}
	return false
}

// advanceCapturedOrder revives a FAILED order and moves a PENDING one to PROCESSING.
func (s *paymentService) advanceCapturedOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.Status == domain.OrderStatusFailed {
		result, err := s.orders.TransitionStatus(ctx, OrderTransitionCommand{
			OrderID:      order.ID,
			TargetStatus: domain.OrderStatusPending,
			ActorID:      systemActor,
			Reason:       "payment captured after failure",
		})
		if err != nil {
			return order, err
		}
		order = result.Order
	}
	if order.Status == domain.OrderStatusPending {
		result, err := s.orders.TransitionStatus(ctx, OrderTransitionCommand{
			OrderID:      order.ID,
			TargetStatus: domain.OrderStatusProcessing,
			ActorID:      systemActor,
		})
		if err != nil {
			return order, err
		}
		order = result.Order
	}
	return order, nil
}

func (s *paymentService) flagRefundRequired(ctx context.Context, order domain.Order, payment domain.Payment) {
	s.logger(ctx, "payment.capture.order_closed", map[string]any{
		"orderId":     order.ID,
		"orderStatus": string(order.Status),
		"paymentId":   payment.ID,
		"amount":      payment.Amount,
	})
}

// afterCapture runs the best-effort follow ups of a capture. Failures are logged only.
func (s *paymentService) afterCapture(ctx context.Context, order domain.Order, payment domain.Payment) {
	if s.notifier != nil {
		if err := s.notifier.SendOrderConfirmation(ctx, OrderConfirmation{UserID: order.UserID, Order: order, Payment: payment}); err != nil {
			s.logger(ctx, "payment.notification.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		}
	}
	if s.receipts != nil {
		if path, err := s.receipts.ArchiveReceipt(ctx, order, payment); err != nil {
			s.logger(ctx, "payment.receipt.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		} else {
			s.logger(ctx, "payment.receipt.archived", map[string]any{"orderId": order.ID, "path": path})
		}
	}
	if s.carts != nil {
		if _, err := s.carts.Clear(ctx, domain.CartOwner{UserID: order.UserID}); err != nil {
			s.logger(ctx, "payment.cart.clear.failed", map[string]any{"userId": order.UserID, "error": err.Error()})
		}
	}
}

// HandleFailedPayment records the failure and fails a PENDING order. A captured payment is left untouched.
func (s *paymentService) HandleFailedPayment(ctx context.Context, gatewayOrderID, reason string) (domain.Payment, error) {
	payment, err := s.findByGatewayOrder(ctx, gatewayOrderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.Status != domain.PaymentStatusCreated && payment.Status != domain.PaymentStatusPending {
		s.logger(ctx, "payment.failure.ignored", map[string]any{"paymentId": payment.ID, "status": payment.Status})
		return payment, nil
	}

	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = strings.TrimSpace(reason)
	payment.UpdatedAt = s.clock()
	if err := s.payments.Update(ctx, payment); err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound, nil)
	}

	order, err := s.orders.GetOrder(ctx, payment.OrderID, "")
	if err != nil {
		return domain.Payment{}, err
	}
	if order.Status == domain.OrderStatusPending {
		if _, err := s.orders.TransitionStatus(ctx, OrderTransitionCommand{
			OrderID:      order.ID,
			TargetStatus: domain.OrderStatusFailed,
			ActorID:      systemActor,
			Reason:       payment.FailureReason,
		}); err != nil {
			return domain.Payment{}, err
		}
	}
	return payment, nil
}

func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrIgnoredEvent):
			s.logger(ctx, "payment.webhook.ignored", map[string]any{"eventId": event.ID, "reason": err.Error()})
			return nil
		case errors.Is(err, payments.ErrInvalidSignature):
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	switch event.Type {
	case payments.EventPaymentCaptured:
		_, err = s.HandleSuccessfulPayment(ctx, event.GatewayOrderID, event.GatewayPaymentID)
	case payments.EventPaymentFailed:
		_, err = s.HandleFailedPayment(ctx, event.GatewayOrderID, event.FailureReason)
	}
	return err
}

// RefundPayment refunds part or all of a captured payment.
func (s *paymentService) RefundPayment(ctx context.Context, cmd RefundPaymentCommand) (domain.Payment, error) {
	if cmd.Amount < 0 {
		return domain.Payment{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidRefund)
	}
	payment, err := s.GetPayment(ctx, cmd.PaymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.Status != domain.PaymentStatusCaptured && payment.Status != domain.PaymentStatusPartiallyRefunded {
		return domain.Payment{}, fmt.Errorf("%w: payment status is %s", ErrInvalidRefund, payment.Status)
	}
	if payment.GatewayOrderID == "" {
		return domain.Payment{}, fmt.Errorf("%w: payment was not collected through the gateway", ErrInvalidRefund)
	}

	remaining := payment.Amount - payment.RefundedAmount()
	amount := cmd.Amount
	if amount == 0 {
		amount = remaining
	}
	if amount <= 0 || amount > remaining {
		return domain.Payment{}, fmt.Errorf("%w: %d requested, %d refundable", ErrInvalidRefund, amount, remaining)
	}

	refundID := refundIDPrefix + s.newID()
	result, err := s.gateway.Refund(ctx, payments.RefundRequest{
		GatewayOrderID: payment.GatewayOrderID,
		Amount:         amount,
		Reason:         strings.TrimSpace(cmd.Reason),
		IdempotencyKey: refundID,
	})
	if err != nil {
		s.logger(ctx, "payment.refund.failed", map[string]any{"paymentId": payment.ID, "error": err.Error()})
		return domain.Payment{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	now := s.clock()
	status := domain.RefundStatusFailed
	switch {
	case result.Succeeded:
		status = domain.RefundStatusSucceeded
	case result.Pending:
		status = domain.RefundStatusPending
	}
	payment.Refunds = append(payment.Refunds, domain.Refund{
		ID:              refundID,
		GatewayRefundID: result.GatewayRefundID,
		Amount:          amount,
		Reason:          strings.TrimSpace(cmd.Reason),
		Status:          status,
		CreatedAt:       now,
	})
	if refunded := payment.RefundedAmount(); refunded >= payment.Amount {
		payment.Status = domain.PaymentStatusRefunded
		payment.RefundRequired = false
	} else if refunded > 0 {
		payment.Status = domain.PaymentStatusPartiallyRefunded
	}
	payment.UpdatedAt = now

	if err := s.payments.Update(ctx, payment); err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound, nil)
	}
	s.logger(ctx, "payment.refunded", map[string]any{
		"paymentId": payment.ID,
		"refundId":  refundID,
		"amount":    amount,
		"actor":     strings.TrimSpace(cmd.ActorID),
	})
	return payment, nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentID string) (domain.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.Payment{}, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound, nil)
	}
	return payment, nil
}

func (s *paymentService) findByGatewayOrder(ctx context.Context, gatewayOrderID string) (domain.Payment, error) {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return domain.Payment{}, fmt.Errorf("%w: gateway order id is required", ErrInvalidInput)
	}
	payment, err := s.payments.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound, nil)
	}
	return payment, nil
}
