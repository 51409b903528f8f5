package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/payments"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

func placedOrder(t *testing.T, f *fixture, method string) domain.Order {
	t.Helper()
	f.seedProduct("a", 2500, map[string]int{"M": 10})
	f.addToCart(t, domain.CartOwner{UserID: "user-1"}, "a", "M", 2)
	return f.placeOrder(t, "user-1", method).Order
}

func TestInitiatePaymentCashOnDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "cod")

	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodCOD, payment.Method)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	assert.Equal(t, int64(5000), payment.Amount)
	assert.Empty(t, f.gateway.charges, "cash on delivery never reaches the gateway")

	stored, err := f.orders.GetOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, stored.Status)
	assert.NotNil(t, stored.EstimatedDelivery)

	_, err = f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.ErrorIs(t, err, ErrPaymentAlreadyInitiated)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestInitiatePaymentThroughGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "card")

	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCreated, payment.Status)
	assert.Equal(t, "pi_1", payment.GatewayOrderID)
	assert.Equal(t, "secret", payment.ClientSecret)

	require.Len(t, f.gateway.charges, 1)
	charge := f.gateway.charges[0]
	assert.Equal(t, int64(5000), charge.Amount)
	assert.Equal(t, "INR", charge.Currency)
	assert.Equal(t, "rcpt_"+order.ID, charge.Receipt)
	assert.Equal(t, order.OrderNumber, charge.Metadata["orderNumber"])

	stored, err := f.orders.GetOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)

	_, err = f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	assert.ErrorIs(t, err, ErrPaymentAlreadyInitiated)

	_, err = f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "intruder"})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestInitiatePaymentGatewayFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "card")
	f.gateway.chargeErr = errors.New("card network down")

	_, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, KindInternal, KindOf(err))

	f.gateway.chargeErr = nil
	_, err = f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	assert.NoError(t, err, "a failed gateway call leaves the order payable")
}

func TestHandleSuccessfulPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "card")
	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)

	f.addToCart(t, domain.CartOwner{UserID: "user-1"}, "a", "M", 1)

	captured, err := f.payments.HandleSuccessfulPayment(ctx, payment.GatewayOrderID, "ch_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, captured.Status)
	assert.Equal(t, "ch_1", captured.GatewayPaymentID)
	assert.NotNil(t, captured.CapturedAt)

	stored, err := f.orders.GetOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, stored.Status)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, order.ID, f.notifier.sent[0].Order.ID)

	view, err := f.carts.Materialize(ctx, domain.CartOwner{UserID: "user-1"})
	require.NoError(t, err)
	assert.Empty(t, view.Cart.Items)

	replay, err := f.payments.HandleSuccessfulPayment(ctx, payment.GatewayOrderID, "ch_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, replay.Status)
	assert.Len(t, f.notifier.sent, 1, "replayed captures do not notify again")
}

func TestHandleSuccessfulPaymentNotificationFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "card")
	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)
	f.notifier.err = errors.New("smtp unavailable")

	captured, err := f.payments.HandleSuccessfulPayment(ctx, payment.GatewayOrderID, "ch_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, captured.Status)
}

func TestHandleFailedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "card")
	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)

	failed, err := f.payments.HandleFailedPayment(ctx, payment.GatewayOrderID, "card declined")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, failed.Status)
	assert.Equal(t, "card declined", failed.FailureReason)

	stored, err := f.orders.GetOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFailed, stored.Status)

	captured, err := f.payments.HandleSuccessfulPayment(ctx, payment.GatewayOrderID, "ch_2")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, captured.Status)
	stored, err = f.orders.GetOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, stored.Status, "a late capture revives a failed order")

	_, err = f.payments.HandleFailedPayment(ctx, "pi_unknown", "declined")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestHandleWebhookDispatchesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "card")
	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)

	f.gateway.parseErr = fmt.Errorf("%w: bad header", payments.ErrInvalidSignature)
	err = f.payments.HandleWebhook(ctx, []byte("{}"), "t=1,v1=bad")
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, KindBadRequest, KindOf(err))

	f.gateway.parseErr = fmt.Errorf("%w: charge.updated", payments.ErrIgnoredEvent)
	require.NoError(t, f.payments.HandleWebhook(ctx, []byte("{}"), "sig"))

	f.gateway.parseErr = nil
	f.gateway.event = payments.Event{ID: "evt_1", Type: payments.EventPaymentCaptured, GatewayOrderID: payment.GatewayOrderID, GatewayPaymentID: "ch_9"}
	require.NoError(t, f.payments.HandleWebhook(ctx, []byte("{}"), "sig"))

	stored, err := f.payments.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, stored.Status)
	assert.Equal(t, "ch_9", stored.GatewayPaymentID)

	f.gateway.event = payments.Event{ID: "evt_2", Type: payments.EventPaymentFailed, GatewayOrderID: "pi_missing"}
	assert.ErrorIs(t, f.payments.HandleWebhook(ctx, []byte("{}"), "sig"), ErrPaymentNotFound)
}

func TestRefundPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "card")
	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)

	_, err = f.payments.RefundPayment(ctx, RefundPaymentCommand{PaymentID: payment.ID, Amount: 100})
	require.ErrorIs(t, err, ErrInvalidRefund, "uncaptured payments cannot be refunded")

	_, err = f.payments.HandleSuccessfulPayment(ctx, payment.GatewayOrderID, "ch_1")
	require.NoError(t, err)

	partial, err := f.payments.RefundPayment(ctx, RefundPaymentCommand{PaymentID: payment.ID, Amount: 2000, Reason: "requested_by_customer"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPartiallyRefunded, partial.Status)
	require.Len(t, partial.Refunds, 1)
	assert.Equal(t, "re_1", partial.Refunds[0].GatewayRefundID)
	assert.Equal(t, domain.RefundStatusSucceeded, partial.Refunds[0].Status)

	_, err = f.payments.RefundPayment(ctx, RefundPaymentCommand{PaymentID: payment.ID, Amount: 3001})
	require.ErrorIs(t, err, ErrInvalidRefund)

	full, err := f.payments.RefundPayment(ctx, RefundPaymentCommand{PaymentID: payment.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, full.Status)
	assert.Equal(t, int64(5000), full.RefundedAmount())
	require.Len(t, f.gateway.refunds, 2)
	assert.Equal(t, int64(3000), f.gateway.refunds[1].Amount)
	assert.Equal(t, "pi_1", f.gateway.refunds[1].GatewayOrderID)
}

func TestRefundCashOnDeliveryIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "cod")
	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)

	_, err = f.payments.RefundPayment(ctx, RefundPaymentCommand{PaymentID: payment.ID})
	assert.ErrorIs(t, err, ErrInvalidRefund)
	assert.Empty(t, f.gateway.refunds)
}

func TestHandleSuccessfulPaymentAfterCancelFlagsRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "card")
	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)
	_, err = f.orders.Cancel(ctx, CancelOrderCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)

	captured, err := f.payments.HandleSuccessfulPayment(ctx, payment.GatewayOrderID, "ch_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, captured.Status)
	assert.True(t, captured.RefundRequired)
	assert.Empty(t, f.notifier.sent, "closed orders are not confirmed")
	assert.Empty(t, f.receipts.archived, "closed orders get no receipt")
	assert.True(t, f.logs.has("payment.capture.order_closed"))

	stored, err := f.orders.GetOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)

	refunded, err := f.payments.RefundPayment(ctx, RefundPaymentCommand{PaymentID: payment.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, refunded.Status)
	assert.False(t, refunded.RefundRequired)
}

func TestHandleSuccessfulPaymentArchivesReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placedOrder(t, f, "card")
	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)

	captured, err := f.payments.HandleSuccessfulPayment(ctx, payment.GatewayOrderID, "ch_1")
	require.NoError(t, err)
	assert.False(t, captured.RefundRequired)
	assert.Equal(t, []string{"rcpt_" + order.ID}, f.receipts.archived)
}

// flakyStatusOrders fails the given number of conditional status writes before delegating.
type flakyStatusOrders struct {
	repositories.OrderRepository
	failures int
}

func (r *flakyStatusOrders) UpdateStatus(ctx context.Context, order domain.Order, expected domain.OrderStatus) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("write timeout")
	}
	return r.OrderRepository.UpdateStatus(ctx, order, expected)
}

func TestInitiatePaymentCashOnDeliveryResumesAfterTransitionFailure(t *testing.T) {
	orders := &flakyStatusOrders{}
	f := newFixture(t, withOrderRepository(func(repo repositories.OrderRepository) repositories.OrderRepository {
		orders.OrderRepository = repo
		return orders
	}))
	ctx := context.Background()
	order := placedOrder(t, f, "cod")

	orders.failures = 1
	_, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))

	pending, err := f.store.Payments().FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, pending.Status)
	stored, err := f.orders.GetOrder(ctx, order.ID, "")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, stored.Status)

	payment, err := f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, payment.ID)

	stored, err = f.orders.GetOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, stored.Status)

	_, err = f.payments.InitiatePayment(ctx, InitiatePaymentCommand{OrderID: order.ID, UserID: "user-1"})
	assert.ErrorIs(t, err, ErrPaymentAlreadyInitiated)
}
