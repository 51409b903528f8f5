package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	pfirestore "github.com/Rohansunwar5/sweety-server-sub000/internal/platform/firestore"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

const paymentsCollection = "payments"

// PaymentRepository persists payments. At most one payment exists per order.
type PaymentRepository struct {
	provider *pfirestore.Provider
	payments *pfirestore.Collection[paymentDocument]
}

// NewPaymentRepository constructs a Firestore backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		provider: provider,
		payments: pfirestore.NewCollection[paymentDocument](provider, paymentsCollection),
	}, nil
}

// Insert creates the payment and fails with a conflict when the order already has one.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	ref, err := r.payments.Doc(ctx, payment.ID)
	if err != nil {
		return err
	}
	coll, err := r.payments.Ref(ctx)
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(coll.Where("orderId", "==", payment.OrderID).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return pfirestore.Conflict("payments.insert", fmt.Errorf("order %s already has payment %s", payment.OrderID, existing[0].Ref.ID))
		}
		return tx.Create(ref, newPaymentDocument(payment))
	})
	return pfirestore.WrapError("payments.insert", err)
}

func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	ref, err := r.payments.Doc(ctx, payment.ID)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, newPaymentDocument(payment))
	return pfirestore.WrapError("payments.update", err)
}

func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	doc, err := r.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.toDomain(paymentID), nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.findOne(ctx, "orderId", orderID)
}

func (r *PaymentRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Payment, error) {
	return r.findOne(ctx, "gatewayOrderId", gatewayOrderID)
}

func (r *PaymentRepository) findOne(ctx context.Context, field, value string) (domain.Payment, error) {
	docs, err := r.payments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.NotFound("payments.find", fmt.Errorf("no payment with %s %s", field, value))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)
